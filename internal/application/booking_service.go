package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/metrics"
)

// BookingService はロック済みの座席を確定予約に変換し、キャンセル・振替を扱う
type BookingService struct {
	ledger      booking.Ledger
	store       seatlock.Store
	catalog     catalog.Repository
	seats       *SeatService
	broadcaster Broadcaster
	publisher   booking.EventPublisher
	metrics     *metrics.Metrics
	secret      string
	location    *time.Location
	now         func() time.Time
}

func NewBookingService(ledger booking.Ledger, store seatlock.Store, cat catalog.Repository, seats *SeatService, secret string) *BookingService {
	return &BookingService{
		ledger:      ledger,
		store:       store,
		catalog:     cat,
		seats:       seats,
		broadcaster: nopBroadcaster{},
		secret:      secret,
		location:    time.Local,
		now:         time.Now,
	}
}

// SetBroadcaster は配信先を設定する
func (s *BookingService) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	s.broadcaster = b
}

// SetPublisher は予約イベントの送信先を設定する（nil の場合は送信しない）
func (s *BookingService) SetPublisher(p booking.EventPublisher) {
	s.publisher = p
}

// SetMetrics はメトリクスを設定する
func (s *BookingService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

type BookSeatInput struct {
	BusID         string
	SeatID        string
	UserID        string
	PassengerName string
	Phone         string
	Date          string
}

// BookingResult は予約と乗車券情報
type BookingResult struct {
	Booking *booking.Booking
	Ticket  *TicketPayload
}

// BookSeat はロックを保持している座席を確定予約にする
// 同じユーザーによる同じ座席の再送信は既存の予約を返す
func (s *BookingService) BookSeat(ctx context.Context, input BookSeatInput) (*BookingResult, error) {
	date, err := seat.NormalizeDate(input.Date, s.now())
	if err != nil {
		return nil, err
	}
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	bus, err := catalog.FindBus(ref.buses, input.BusID)
	if err != nil {
		return nil, err
	}
	if _, ok := bus.FindSeat(input.SeatID); !ok {
		return nil, catalog.ErrSeatNotFound
	}
	key := seatlock.NewKey(bus.ID, date, input.SeatID)

	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
	}
	if existing := booking.FindConfirmed(bookings, key); existing != nil {
		if existing.UserID == input.UserID {
			s.metrics.IncBooking("duplicate")
			logger.Info("同じ座席の予約を再送信", zap.String("pnr", existing.PNR), zap.String("user_id", input.UserID))
			return s.result(existing, ref), nil
		}
		s.metrics.IncBooking("conflict")
		return nil, booking.ErrSeatAlreadyBooked
	}

	// ロック確認
	lock, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !lock.IsOwnedBy(input.UserID) || !lock.IsLock() {
		s.metrics.IncBooking("precondition_failed")
		return nil, booking.ErrLockRequired
	}

	pnr, err := GeneratePNR()
	if err != nil {
		return nil, err
	}
	b := booking.NewBooking(booking.NewBookingParams{
		ID:            newBookingID(),
		PNR:           pnr,
		BusID:         bus.ID,
		OperatorID:    bus.OperatorID,
		RouteID:       bus.RouteID,
		SeatID:        input.SeatID,
		UserID:        input.UserID,
		PassengerName: input.PassengerName,
		Phone:         input.Phone,
		Date:          date,
		Price:         bus.Price,
	}, s.now())
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if err := s.ledger.Append(ctx, b); err != nil {
		if !errors.Is(err, booking.ErrSeatAlreadyBooked) {
			return nil, fmt.Errorf("予約の保存に失敗: %w", err)
		}
		// 同じユーザーの並行リクエストが先に確定した場合はその予約を返す
		existing, readErr := s.findConfirmed(ctx, key)
		if readErr == nil && existing != nil && existing.UserID == input.UserID {
			s.metrics.IncBooking("duplicate")
			return s.result(existing, ref), nil
		}
		s.metrics.IncBooking("conflict")
		return nil, err
	}

	// 確定後はロックを残さない
	if _, err := s.store.ReleaseLock(ctx, key, input.UserID); err != nil {
		logger.Warn("予約確定後のロック解放に失敗", zap.String("key", key.String()), zap.Error(err))
	}

	s.broadcaster.BroadcastSeatUpdate(ctx, seat.BookedUpdate(key))
	s.seats.InvalidateCache(ctx, bus.ID, date)
	s.publish(ctx, booking.EventConfirmed, b)
	s.metrics.IncBooking("confirmed")

	logger.Info("予約を確定",
		zap.String("pnr", b.PNR),
		zap.String("key", key.String()),
		zap.String("user_id", input.UserID),
	)
	return s.result(b, ref), nil
}

// CancelResult はキャンセル結果
type CancelResult struct {
	Booking      *booking.Booking
	Cancellation booking.Cancellation
}

// CancelBooking は確定予約をキャンセルする。ロック状態には触れない
func (s *BookingService) CancelBooking(ctx context.Context, pnr string) (*CancelResult, error) {
	buses, err := s.catalog.Buses(ctx)
	if err != nil {
		return nil, fmt.Errorf("バス一覧の取得に失敗: %w", err)
	}

	var result *CancelResult
	err = s.ledger.ReplaceAll(ctx, func(bookings []*booking.Booking) ([]*booking.Booking, error) {
		b := booking.FindByPNR(bookings, pnr)
		if b == nil {
			return nil, booking.ErrBookingNotFound
		}
		if !b.IsConfirmed() {
			return nil, booking.ErrBookingNotActive
		}
		bus, err := catalog.FindBus(buses, b.BusID)
		if err != nil {
			return nil, err
		}
		departure, err := bus.DepartureAt(b.Date, s.location)
		if err != nil {
			return nil, err
		}
		c, err := b.Cancel(departure, s.now())
		if err != nil {
			return nil, err
		}
		result = &CancelResult{Booking: b, Cancellation: c}
		return bookings, nil
	})
	if err != nil {
		return nil, err
	}

	key := result.Booking.Key()
	s.broadcaster.BroadcastSeatUpdate(ctx, seat.AvailableUpdate(key))
	s.seats.InvalidateCache(ctx, key.BusID, key.Date)
	s.publish(ctx, booking.EventCancelled, result.Booking)
	s.metrics.IncBooking("cancelled")

	logger.Info("予約をキャンセル",
		zap.String("pnr", pnr),
		zap.Int64("penalty_percent", result.Cancellation.PenaltyPercent),
		zap.String("refund", result.Cancellation.Refund.String()),
	)
	return result, nil
}

type RescheduleInput struct {
	PNR       string
	NewBusID  string
	NewSeatID string
	NewDate   string
	UserID    string
}

// RescheduleResult は振替結果
type RescheduleResult struct {
	Old    *booking.Booking
	New    *booking.Booking
	Ticket *TicketPayload
}

// RescheduleBooking は確定予約を別の座席に振り替える
// 振替先の座席は仮押さえかロックを保持している必要がある
func (s *BookingService) RescheduleBooking(ctx context.Context, input RescheduleInput) (*RescheduleResult, error) {
	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	newBus, err := catalog.FindBus(ref.buses, input.NewBusID)
	if err != nil {
		return nil, err
	}
	if _, ok := newBus.FindSeat(input.NewSeatID); !ok {
		return nil, catalog.ErrSeatNotFound
	}

	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
	}
	current := booking.FindByPNR(bookings, input.PNR)
	if current == nil {
		return nil, booking.ErrBookingNotFound
	}
	if !current.IsConfirmed() {
		return nil, booking.ErrBookingNotActive
	}

	date := current.Date
	if input.NewDate != "" {
		if date, err = seat.NormalizeDate(input.NewDate, s.now()); err != nil {
			return nil, err
		}
	}
	newKey := seatlock.NewKey(newBus.ID, date, input.NewSeatID)

	lock, err := s.store.Get(ctx, newKey)
	if err != nil {
		return nil, err
	}
	if !lock.IsOwnedBy(input.UserID) {
		return nil, booking.ErrHoldOrLockRequired
	}

	newPNR, err := GeneratePNR()
	if err != nil {
		return nil, err
	}

	var result RescheduleResult
	err = s.ledger.ReplaceAll(ctx, func(bookings []*booking.Booking) ([]*booking.Booking, error) {
		old := booking.FindByPNR(bookings, input.PNR)
		if old == nil {
			return nil, booking.ErrBookingNotFound
		}
		if booking.FindConfirmed(bookings, newKey) != nil {
			return nil, booking.ErrSeatAlreadyBooked
		}
		if err := old.MarkRescheduled(newPNR); err != nil {
			return nil, err
		}
		nb := booking.NewBooking(booking.NewBookingParams{
			ID:            newBookingID(),
			PNR:           newPNR,
			BusID:         newBus.ID,
			OperatorID:    newBus.OperatorID,
			RouteID:       newBus.RouteID,
			SeatID:        input.NewSeatID,
			UserID:        input.UserID,
			PassengerName: old.PassengerName,
			Phone:         old.Phone,
			Date:          date,
			Price:         newBus.Price,
		}, s.now())
		nb.PreviousPNR = old.PNR

		result.Old = old
		result.New = nb
		return append(bookings, nb), nil
	})
	if err != nil {
		return nil, err
	}

	// 振替先は確定予約になったので仮押さえ・ロックを残さない
	if err := s.releaseKey(ctx, newKey, input.UserID, lock.Kind); err != nil {
		logger.Warn("振替後の座席解放に失敗", zap.String("key", newKey.String()), zap.Error(err))
	}

	oldKey := result.Old.Key()
	s.broadcaster.BroadcastSeatUpdate(ctx, seat.AvailableUpdate(oldKey))
	s.broadcaster.BroadcastSeatUpdate(ctx, seat.BookedUpdate(newKey))
	s.seats.InvalidateCache(ctx, oldKey.BusID, oldKey.Date)
	s.seats.InvalidateCache(ctx, newKey.BusID, newKey.Date)
	s.publish(ctx, booking.EventRescheduled, result.New)
	s.metrics.IncBooking("rescheduled")

	logger.Info("予約を振替",
		zap.String("old_pnr", result.Old.PNR),
		zap.String("new_pnr", result.New.PNR),
		zap.String("key", newKey.String()),
	)
	result.Ticket = s.result(result.New, ref).Ticket
	return &result, nil
}

// TicketView は乗車券の表示に必要な情報
type TicketView struct {
	Booking  *booking.Booking
	Bus      *catalog.Bus
	Route    *catalog.Route
	Operator *catalog.Operator
	// Ticket は確定予約の場合のみ設定される
	Ticket *TicketPayload
}

// GetTicket はPNRから乗車券を返す
func (s *BookingService) GetTicket(ctx context.Context, pnr string) (*TicketView, error) {
	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
	}
	b := booking.FindByPNR(bookings, pnr)
	if b == nil {
		return nil, booking.ErrBookingNotFound
	}

	ref, err := s.loadReference(ctx)
	if err != nil {
		return nil, err
	}
	view := &TicketView{Booking: b}
	view.Bus, _ = catalog.FindBus(ref.buses, b.BusID)
	view.Route, _ = catalog.FindRoute(ref.routes, b.RouteID)
	view.Operator, _ = catalog.FindOperator(ref.operators, b.OperatorID)
	if b.IsConfirmed() {
		view.Ticket = BuildTicketPayload(b, view.Bus, view.Route, view.Operator, s.secret)
	}
	return view, nil
}

type reference struct {
	buses     []*catalog.Bus
	routes    []*catalog.Route
	operators []*catalog.Operator
}

func (s *BookingService) loadReference(ctx context.Context) (*reference, error) {
	buses, err := s.catalog.Buses(ctx)
	if err != nil {
		return nil, fmt.Errorf("バス一覧の取得に失敗: %w", err)
	}
	routes, err := s.catalog.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("路線一覧の取得に失敗: %w", err)
	}
	operators, err := s.catalog.Operators(ctx)
	if err != nil {
		return nil, fmt.Errorf("運行会社の取得に失敗: %w", err)
	}
	return &reference{buses: buses, routes: routes, operators: operators}, nil
}

func (s *BookingService) result(b *booking.Booking, ref *reference) *BookingResult {
	bus, _ := catalog.FindBus(ref.buses, b.BusID)
	route, _ := catalog.FindRoute(ref.routes, b.RouteID)
	op, _ := catalog.FindOperator(ref.operators, b.OperatorID)
	return &BookingResult{Booking: b, Ticket: BuildTicketPayload(b, bus, route, op, s.secret)}
}

func (s *BookingService) findConfirmed(ctx context.Context, key seatlock.Key) (*booking.Booking, error) {
	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return booking.FindConfirmed(bookings, key), nil
}

func (s *BookingService) releaseKey(ctx context.Context, key seatlock.Key, userID string, kind seatlock.Kind) error {
	var err error
	if kind == seatlock.KindHold {
		_, err = s.store.ReleaseHold(ctx, key, userID)
	} else {
		_, err = s.store.ReleaseLock(ctx, key, userID)
	}
	return err
}

// publish は予約イベントを送信する。失敗しても予約は取り消さない
func (s *BookingService) publish(ctx context.Context, typ booking.EventType, b *booking.Booking) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, booking.Event{Type: typ, Booking: b}); err != nil {
		logger.Warn("予約イベントの送信に失敗", zap.String("type", string(typ)), zap.String("pnr", b.PNR), zap.Error(err))
	}
}
