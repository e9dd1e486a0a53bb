package booking

import "context"

// Ledger は予約台帳のインターフェース
// プロセス内の書き込みは直列化され、書き込み直後の読み取りに反映されること
type Ledger interface {
	// ReadAll は全予約を返す
	ReadAll(ctx context.Context) ([]*Booking, error)

	// Append は予約を追加する
	// 同じ座席に確定予約が既にある場合は ErrSeatAlreadyBooked を返す
	Append(ctx context.Context, b *Booking) error

	// ReplaceAll は全予約を updater の結果で置き換える
	// updater がエラーを返した場合は何も変更しない
	ReplaceAll(ctx context.Context, updater func([]*Booking) ([]*Booking, error)) error
}

// EventType は予約ライフサイクルイベントの種類
type EventType string

const (
	EventConfirmed   EventType = "booking.confirmed"
	EventCancelled   EventType = "booking.cancelled"
	EventRescheduled EventType = "booking.rescheduled"
)

// Event は外部に通知する予約ライフサイクルイベント
type Event struct {
	Type    EventType
	Booking *Booking
}

// EventPublisher は予約イベントの送信先
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
