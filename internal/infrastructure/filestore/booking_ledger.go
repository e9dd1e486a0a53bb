package filestore

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
)

// BookingsFile は予約台帳のファイル名
const BookingsFile = "bookings.json"

// bookingRecord はファイル上の予約レコード
type bookingRecord struct {
	ID            string           `json:"id"`
	PNR           string           `json:"pnr"`
	PreviousPNR   string           `json:"previousPnr,omitempty"`
	RescheduledTo string           `json:"rescheduledTo,omitempty"`
	BusID         string           `json:"busId"`
	OperatorID    string           `json:"operatorId"`
	RouteID       string           `json:"routeId"`
	SeatID        string           `json:"seatId"`
	UserID        string           `json:"userId"`
	PassengerName string           `json:"passengerName"`
	Phone         string           `json:"phone"`
	Date          string           `json:"date"`
	Price         decimal.Decimal  `json:"price"`
	Status        string           `json:"status"`
	BookedAt      time.Time        `json:"bookedAt"`
	CancelledAt   *time.Time       `json:"cancelledAt,omitempty"`
	Penalty       *decimal.Decimal `json:"penalty,omitempty"`
	Refund        *decimal.Decimal `json:"refund,omitempty"`
}

func (r *bookingRecord) toEntity() *booking.Booking {
	return &booking.Booking{
		ID:            r.ID,
		PNR:           r.PNR,
		PreviousPNR:   r.PreviousPNR,
		RescheduledTo: r.RescheduledTo,
		BusID:         r.BusID,
		OperatorID:    r.OperatorID,
		RouteID:       r.RouteID,
		SeatID:        r.SeatID,
		UserID:        r.UserID,
		PassengerName: r.PassengerName,
		Phone:         r.Phone,
		Date:          r.Date,
		Price:         r.Price,
		Status:        booking.Status(r.Status),
		BookedAt:      r.BookedAt,
		CancelledAt:   r.CancelledAt,
		Penalty:       r.Penalty,
		Refund:        r.Refund,
	}
}

func toBookingRecord(b *booking.Booking) bookingRecord {
	return bookingRecord{
		ID:            b.ID,
		PNR:           b.PNR,
		PreviousPNR:   b.PreviousPNR,
		RescheduledTo: b.RescheduledTo,
		BusID:         b.BusID,
		OperatorID:    b.OperatorID,
		RouteID:       b.RouteID,
		SeatID:        b.SeatID,
		UserID:        b.UserID,
		PassengerName: b.PassengerName,
		Phone:         b.Phone,
		Date:          b.Date,
		Price:         b.Price,
		Status:        string(b.Status),
		BookedAt:      b.BookedAt,
		CancelledAt:   b.CancelledAt,
		Penalty:       b.Penalty,
		Refund:        b.Refund,
	}
}

// Ledger はJSONファイルに保存する予約台帳
// 書き込みはファイル単位のミューテックスで直列化する
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger は新しいLedgerを作成する
func NewLedger(dataDir string) *Ledger {
	return &Ledger{path: filepath.Join(dataDir, BookingsFile)}
}

var _ booking.Ledger = (*Ledger)(nil)

// ReadAll は全予約を返す
func (l *Ledger) ReadAll(ctx context.Context) ([]*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Append は予約を追加する
func (l *Ledger) Append(ctx context.Context, b *booking.Booking) error {
	return l.ReplaceAll(ctx, func(bookings []*booking.Booking) ([]*booking.Booking, error) {
		if b.IsConfirmed() && booking.FindConfirmed(bookings, b.Key()) != nil {
			return nil, booking.ErrSeatAlreadyBooked
		}
		return append(bookings, b), nil
	})
}

// ReplaceAll は全予約を updater の結果で置き換える
func (l *Ledger) ReplaceAll(ctx context.Context, updater func([]*booking.Booking) ([]*booking.Booking, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load()
	if err != nil {
		return err
	}
	updated, err := updater(current)
	if err != nil {
		return err
	}
	if err := booking.EnsureUniqueConfirmed(updated); err != nil {
		return err
	}
	return l.save(updated)
}

func (l *Ledger) load() ([]*booking.Booking, error) {
	var records []bookingRecord
	if _, err := readJSON(l.path, &records); err != nil {
		return nil, err
	}
	bookings := make([]*booking.Booking, 0, len(records))
	for i := range records {
		bookings = append(bookings, records[i].toEntity())
	}
	return bookings, nil
}

func (l *Ledger) save(bookings []*booking.Booking) error {
	records := make([]bookingRecord, 0, len(bookings))
	for _, b := range bookings {
		records = append(records, toBookingRecord(b))
	}
	return writeJSON(l.path, records)
}
