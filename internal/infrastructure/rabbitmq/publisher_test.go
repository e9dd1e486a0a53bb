package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestPublisher(ch *fakeChannel) *Publisher {
	return &Publisher{
		ch:    ch,
		queue: "booking_events",
		now:   func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func testBooking() *booking.Booking {
	return booking.NewBooking(booking.NewBookingParams{
		ID: "bk_1234abcd", PNR: "PNRABC234", BusID: "bus-1", SeatID: "3A",
		UserID: "user-a", PassengerName: "山田太郎", Date: "2025-01-10", Price: decimal.NewFromInt(1000),
	}, time.Now())
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("永続メッセージとしてキューに送信する", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newTestPublisher(ch)

		err := p.Publish(ctx, booking.Event{Type: booking.EventConfirmed, Booking: testBooking()})
		require.NoError(t, err)

		require.Len(t, ch.published, 1)
		msg := ch.published[0]
		assert.Equal(t, "booking_events", ch.keys[0])
		assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
		assert.Equal(t, "booking.confirmed", msg.Type)
		assert.Equal(t, "application/json", msg.ContentType)

		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Body, &body))
		assert.Equal(t, "PNRABC234", body["pnr"])
		assert.Equal(t, "1000", body["price"])
		assert.Equal(t, "2025-01-01T09:00:00Z", body["occurredAt"])
		assert.NotContains(t, body, "penalty")
	})

	t.Run("キャンセルイベントにはキャンセル料を含める", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newTestPublisher(ch)
		b := testBooking()
		departure := time.Now().Add(48 * time.Hour)
		_, err := b.Cancel(departure, time.Now())
		require.NoError(t, err)

		require.NoError(t, p.Publish(ctx, booking.Event{Type: booking.EventCancelled, Booking: b}))

		var body map[string]any
		require.NoError(t, json.Unmarshal(ch.published[0].Body, &body))
		assert.Equal(t, "100", body["penalty"])
		assert.Equal(t, "900", body["refund"])
		assert.Equal(t, "cancelled", body["status"])
	})

	t.Run("送信失敗はエラーを返す", func(t *testing.T) {
		ch := &fakeChannel{err: errors.New("channel/connection is not open")}
		p := newTestPublisher(ch)

		err := p.Publish(ctx, booking.Event{Type: booking.EventConfirmed, Booking: testBooking()})
		assert.Error(t, err)
	})

	t.Run("予約のないイベントは送信しない", func(t *testing.T) {
		ch := &fakeChannel{}
		p := newTestPublisher(ch)

		assert.Error(t, p.Publish(ctx, booking.Event{Type: booking.EventConfirmed}))
		assert.Empty(t, ch.published)
	})
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
