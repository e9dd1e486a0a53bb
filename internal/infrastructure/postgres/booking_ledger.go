package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
)

const bookingColumns = `id, pnr, previous_pnr, rescheduled_to, bus_id, operator_id, route_id, seat_id, user_id,
	passenger_name, phone, travel_date, price, status, booked_at, cancelled_at, penalty, refund`

type bookingRow struct {
	ID            string              `db:"id"`
	PNR           string              `db:"pnr"`
	PreviousPNR   string              `db:"previous_pnr"`
	RescheduledTo string              `db:"rescheduled_to"`
	BusID         string              `db:"bus_id"`
	OperatorID    string              `db:"operator_id"`
	RouteID       string              `db:"route_id"`
	SeatID        string              `db:"seat_id"`
	UserID        string              `db:"user_id"`
	PassengerName string              `db:"passenger_name"`
	Phone         string              `db:"phone"`
	TravelDate    string              `db:"travel_date"`
	Price         decimal.Decimal     `db:"price"`
	Status        string              `db:"status"`
	BookedAt      time.Time           `db:"booked_at"`
	CancelledAt   *time.Time          `db:"cancelled_at"`
	Penalty       decimal.NullDecimal `db:"penalty"`
	Refund        decimal.NullDecimal `db:"refund"`
}

// BookingLedger は PostgreSQL に保存する予約台帳
// プロセス内はミューテックス、プロセス間は行ロックと部分一意インデックスで直列化する
type BookingLedger struct {
	db        *sqlx.DB
	txManager *TxManager
	mu        sync.Mutex
}

func NewBookingLedger(db *sqlx.DB) *BookingLedger {
	return &BookingLedger{db: db, txManager: NewTxManager(db)}
}

var _ booking.Ledger = (*BookingLedger)(nil)

func (l *BookingLedger) ReadAll(ctx context.Context) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := l.db.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings ORDER BY booked_at, id`); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (l *BookingLedger) Append(ctx context.Context, b *booking.Booking) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.db.NamedExecContext(ctx, insertBookingQuery, toRow(b)); err != nil {
		return mapWriteError("予約作成に失敗", err)
	}
	return nil
}

func (l *BookingLedger) ReplaceAll(ctx context.Context, updater func([]*booking.Booking) ([]*booking.Booking, error)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.txManager.WithTx(ctx, func(tx *sqlx.Tx) error {
		var rows []bookingRow
		if err := tx.SelectContext(ctx, &rows, `SELECT `+bookingColumns+` FROM bookings ORDER BY booked_at, id FOR UPDATE`); err != nil {
			return fmt.Errorf("予約一覧取得に失敗: %w", err)
		}
		existing := make(map[string]bookingRow, len(rows))
		for _, row := range rows {
			existing[row.ID] = row
		}

		updated, err := updater(toEntities(rows))
		if err != nil {
			return err
		}
		if err := booking.EnsureUniqueConfirmed(updated); err != nil {
			return err
		}

		// 既存行の更新を先に行い、確定予約の一意制約を満たしたまま新規行を追加する
		var inserts []bookingRow
		for _, b := range updated {
			row := toRow(b)
			old, ok := existing[row.ID]
			if !ok {
				inserts = append(inserts, row)
				continue
			}
			if sameRow(old, row) {
				continue
			}
			if _, err := tx.NamedExecContext(ctx, updateBookingQuery, row); err != nil {
				return mapWriteError("予約更新に失敗", err)
			}
		}
		for _, row := range inserts {
			if _, err := tx.NamedExecContext(ctx, insertBookingQuery, row); err != nil {
				return mapWriteError("予約作成に失敗", err)
			}
		}
		return nil
	})
}

const insertBookingQuery = `INSERT INTO bookings (` + bookingColumns + `) VALUES (
	:id, :pnr, :previous_pnr, :rescheduled_to, :bus_id, :operator_id, :route_id, :seat_id, :user_id,
	:passenger_name, :phone, :travel_date, :price, :status, :booked_at, :cancelled_at, :penalty, :refund)`

const updateBookingQuery = `UPDATE bookings SET rescheduled_to = :rescheduled_to, status = :status,
	cancelled_at = :cancelled_at, penalty = :penalty, refund = :refund WHERE id = :id`

func mapWriteError(op string, err error) error {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return booking.ErrSeatAlreadyBooked
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sameRow(a, b bookingRow) bool {
	return a.Status == b.Status &&
		a.RescheduledTo == b.RescheduledTo &&
		equalTime(a.CancelledAt, b.CancelledAt) &&
		equalNullDecimal(a.Penalty, b.Penalty) &&
		equalNullDecimal(a.Refund, b.Refund)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalNullDecimal(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}

func toRow(b *booking.Booking) bookingRow {
	row := bookingRow{
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
		TravelDate:    b.Date,
		Price:         b.Price,
		Status:        string(b.Status),
		BookedAt:      b.BookedAt,
		CancelledAt:   b.CancelledAt,
	}
	if b.Penalty != nil {
		row.Penalty = decimal.NewNullDecimal(*b.Penalty)
	}
	if b.Refund != nil {
		row.Refund = decimal.NewNullDecimal(*b.Refund)
	}
	return row
}

func toEntities(rows []bookingRow) []*booking.Booking {
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

func (r *bookingRow) toEntity() *booking.Booking {
	b := &booking.Booking{
		ID: r.ID, PNR: r.PNR, PreviousPNR: r.PreviousPNR, RescheduledTo: r.RescheduledTo,
		BusID: r.BusID, OperatorID: r.OperatorID, RouteID: r.RouteID, SeatID: r.SeatID,
		UserID: r.UserID, PassengerName: r.PassengerName, Phone: r.Phone, Date: r.TravelDate,
		Price: r.Price, Status: booking.Status(r.Status), BookedAt: r.BookedAt, CancelledAt: r.CancelledAt,
	}
	if r.Penalty.Valid {
		p := r.Penalty.Decimal
		b.Penalty = &p
	}
	if r.Refund.Valid {
		rf := r.Refund.Decimal
		b.Refund = &rf
	}
	return b
}
