package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
)

// channel は送信に使う amqp.Channel の操作
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher は予約ライフサイクルイベントを RabbitMQ のキューへ送信する
// amqp.Channel は並行送信に対応しないためミューテックスで直列化する
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	mu    sync.Mutex
	now   func() time.Time
}

// NewPublisher は接続を確立し、永続キューを宣言する
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("チャネル作成に失敗しました: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("キュー宣言に失敗しました: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, now: time.Now}, nil
}

var _ booking.EventPublisher = (*Publisher)(nil)

// message はキューに送る予約イベントの本文
type message struct {
	Type          string `json:"type"`
	BookingID     string `json:"bookingId"`
	PNR           string `json:"pnr"`
	PreviousPNR   string `json:"previousPnr,omitempty"`
	BusID         string `json:"busId"`
	SeatID        string `json:"seatId"`
	Date          string `json:"date"`
	UserID        string `json:"userId"`
	PassengerName string `json:"passengerName"`
	Price         string `json:"price"`
	Penalty       string `json:"penalty,omitempty"`
	Refund        string `json:"refund,omitempty"`
	Status        string `json:"status"`
	OccurredAt    string `json:"occurredAt"`
}

func newMessage(event booking.Event, at time.Time) message {
	b := event.Booking
	m := message{
		Type:          string(event.Type),
		BookingID:     b.ID,
		PNR:           b.PNR,
		PreviousPNR:   b.PreviousPNR,
		BusID:         b.BusID,
		SeatID:        b.SeatID,
		Date:          b.Date,
		UserID:        b.UserID,
		PassengerName: b.PassengerName,
		Price:         b.Price.String(),
		Status:        string(b.Status),
		OccurredAt:    at.UTC().Format(time.RFC3339),
	}
	if b.Penalty != nil {
		m.Penalty = b.Penalty.String()
	}
	if b.Refund != nil {
		m.Refund = b.Refund.String()
	}
	return m
}

// Publish はイベントを永続メッセージとして送信する
func (p *Publisher) Publish(ctx context.Context, event booking.Event) error {
	if event.Booking == nil {
		return fmt.Errorf("予約のないイベントは送信できません: %s", event.Type)
	}
	now := p.now()
	body, err := json.Marshal(newMessage(event, now))
	if err != nil {
		return fmt.Errorf("イベントの変換に失敗: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Type),
		MessageId:    event.Booking.ID + ":" + string(event.Type),
		Timestamp:    now.UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("イベント送信に失敗: %w", err)
	}
	return nil
}

// Close はチャネルと接続を閉じる
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
