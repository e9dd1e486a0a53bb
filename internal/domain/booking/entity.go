package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

// Status は予約の状態を表す
type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Booking は確定した座席予約を表す（削除はされない）
type Booking struct {
	ID            string
	PNR           string
	PreviousPNR   string
	RescheduledTo string
	BusID         string
	OperatorID    string
	RouteID       string
	SeatID        string
	UserID        string
	PassengerName string
	Phone         string
	Date          string
	Price         decimal.Decimal
	Status        Status
	BookedAt      time.Time
	CancelledAt   *time.Time
	Penalty       *decimal.Decimal
	Refund        *decimal.Decimal
}

// NewBookingParams は予約作成時のパラメータ
type NewBookingParams struct {
	ID            string
	PNR           string
	BusID         string
	OperatorID    string
	RouteID       string
	SeatID        string
	UserID        string
	PassengerName string
	Phone         string
	Date          string
	Price         decimal.Decimal
}

// NewBooking は確定状態の予約を作成する
func NewBooking(p NewBookingParams, now time.Time) *Booking {
	return &Booking{
		ID:            p.ID,
		PNR:           p.PNR,
		BusID:         p.BusID,
		OperatorID:    p.OperatorID,
		RouteID:       p.RouteID,
		SeatID:        p.SeatID,
		UserID:        p.UserID,
		PassengerName: p.PassengerName,
		Phone:         p.Phone,
		Date:          p.Date,
		Price:         p.Price,
		Status:        StatusConfirmed,
		BookedAt:      now,
	}
}

// Key は予約対象の座席キーを返す
func (b *Booking) Key() seatlock.Key {
	return seatlock.NewKey(b.BusID, b.Date, b.SeatID)
}

// IsConfirmed は予約が有効かを返す
func (b *Booking) IsConfirmed() bool {
	return b.Status == StatusConfirmed
}

// Occupies は指定キーを確定予約として占有しているかを返す
func (b *Booking) Occupies(key seatlock.Key) bool {
	return b.IsConfirmed() && b.Key() == key
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.BusID == "" {
		return ErrBusIDRequired
	}
	if b.SeatID == "" {
		return ErrSeatIDRequired
	}
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.PassengerName == "" {
		return ErrPassengerNameRequired
	}
	return nil
}

// Cancel は予約をキャンセルし、出発までの時間に応じたキャンセル料を確定する
func (b *Booking) Cancel(departure, now time.Time) (Cancellation, error) {
	if !b.IsConfirmed() {
		return Cancellation{}, ErrBookingNotActive
	}
	until := departure.Sub(now)
	if until < 0 {
		return Cancellation{}, ErrDeparted
	}

	c := CalculateCancellation(b.Price, until)
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.Penalty = &c.Penalty
	b.Refund = &c.Refund
	return c, nil
}

// MarkRescheduled は予約を振替済みにする
func (b *Booking) MarkRescheduled(newPNR string) error {
	if !b.IsConfirmed() {
		return ErrBookingNotActive
	}
	b.Status = StatusRescheduled
	b.RescheduledTo = newPNR
	return nil
}

// FindConfirmed は指定キーの確定予約を探す
func FindConfirmed(bookings []*Booking, key seatlock.Key) *Booking {
	for _, b := range bookings {
		if b.Occupies(key) {
			return b
		}
	}
	return nil
}

// FindByPNR はPNRで予約を探す
func FindByPNR(bookings []*Booking, pnr string) *Booking {
	for _, b := range bookings {
		if b.PNR == pnr {
			return b
		}
	}
	return nil
}

// ConfirmedSeats はルーム内で確定予約済みの座席IDを返す
func ConfirmedSeats(bookings []*Booking, busID, date string) map[string]struct{} {
	seats := make(map[string]struct{})
	for _, b := range bookings {
		if b.IsConfirmed() && b.BusID == busID && b.Date == date {
			seats[b.SeatID] = struct{}{}
		}
	}
	return seats
}

// EnsureUniqueConfirmed は座席ごとに確定予約が1件以下であることを検証する
func EnsureUniqueConfirmed(bookings []*Booking) error {
	seen := make(map[seatlock.Key]struct{}, len(bookings))
	for _, b := range bookings {
		if !b.IsConfirmed() {
			continue
		}
		if _, ok := seen[b.Key()]; ok {
			return ErrSeatAlreadyBooked
		}
		seen[b.Key()] = struct{}{}
	}
	return nil
}
