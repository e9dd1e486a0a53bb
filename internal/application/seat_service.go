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
	redisinfra "github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
)

const (
	seatCacheTTL = 30 * time.Second
)

// SeatService は予約台帳とロック状態を合成して座席の状態を返す
type SeatService struct {
	store   seatlock.Store
	catalog catalog.Repository
	ledger  booking.Ledger
	cache   *redisinfra.SeatCache
	now     func() time.Time
}

func NewSeatService(store seatlock.Store, cat catalog.Repository, ledger booking.Ledger, cache *redisinfra.SeatCache) *SeatService {
	return &SeatService{store: store, catalog: cat, ledger: ledger, cache: cache, now: time.Now}
}

// GetSeatsWithState はバスの全座席の状態を返す
// 台帳の読み込み1回とロックの一括取得1回から組み立てる
func (s *SeatService) GetSeatsWithState(ctx context.Context, busID, userID, date string) ([]seat.State, error) {
	date, err := seat.NormalizeDate(date, s.now())
	if err != nil {
		return nil, err
	}
	bus, err := s.findBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
	}
	booked := booking.ConfirmedSeats(bookings, bus.ID, date)

	locks, err := s.store.List(ctx, bus.ID, date)
	if err != nil {
		return nil, err
	}

	states := make([]seat.State, 0, len(bus.Seats))
	for _, st := range bus.Seats {
		_, isBooked := booked[st.ID]
		status, lock := seat.Resolve(isBooked, locks[st.ID], userID)

		state := seat.State{ID: st.ID, Row: st.Row, Column: st.Column, Type: st.Type, Status: status}
		if lock != nil {
			owner := lock.OwnerID
			kind := lock.Kind
			ttl := lock.TTLSeconds()
			state.LockedBy = &owner
			state.LockKind = &kind
			state.TTLSeconds = &ttl
		}
		states = append(states, state)
	}
	return states, nil
}

// BusSummary はバスと運行会社、空席数をまとめたもの
type BusSummary struct {
	Bus            *catalog.Bus
	Operator       *catalog.Operator
	AvailableSeats int
}

// ListBuses は路線のバス一覧を返す
func (s *SeatService) ListBuses(ctx context.Context, routeID, date string) ([]*BusSummary, error) {
	date, err := seat.NormalizeDate(date, s.now())
	if err != nil {
		return nil, err
	}
	buses, err := s.catalog.Buses(ctx)
	if err != nil {
		return nil, fmt.Errorf("バス一覧の取得に失敗: %w", err)
	}
	operators, err := s.catalog.Operators(ctx)
	if err != nil {
		return nil, fmt.Errorf("運行会社の取得に失敗: %w", err)
	}

	var bookings []*booking.Booking
	summaries := make([]*BusSummary, 0)
	for _, b := range buses {
		if b.RouteID != routeID {
			continue
		}
		count, err := s.countAvailableSeats(ctx, b, date, &bookings)
		if err != nil {
			return nil, err
		}
		op, _ := catalog.FindOperator(operators, b.OperatorID)
		summaries = append(summaries, &BusSummary{Bus: b, Operator: op, AvailableSeats: count})
	}
	return summaries, nil
}

// GetBus はバスの詳細を返す
func (s *SeatService) GetBus(ctx context.Context, busID, date string) (*BusSummary, error) {
	date, err := seat.NormalizeDate(date, s.now())
	if err != nil {
		return nil, err
	}
	bus, err := s.findBus(ctx, busID)
	if err != nil {
		return nil, err
	}
	operators, err := s.catalog.Operators(ctx)
	if err != nil {
		return nil, fmt.Errorf("運行会社の取得に失敗: %w", err)
	}

	var bookings []*booking.Booking
	count, err := s.countAvailableSeats(ctx, bus, date, &bookings)
	if err != nil {
		return nil, err
	}
	op, _ := catalog.FindOperator(operators, bus.OperatorID)
	return &BusSummary{Bus: bus, Operator: op, AvailableSeats: count}, nil
}

// ListRoutes は出発地・到着地で絞り込んだ路線一覧を返す（空文字は絞り込まない）
func (s *SeatService) ListRoutes(ctx context.Context, source, destination string) ([]*catalog.Route, error) {
	routes, err := s.catalog.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("路線一覧の取得に失敗: %w", err)
	}
	filtered := make([]*catalog.Route, 0, len(routes))
	for _, r := range routes {
		if source != "" && r.Source != source {
			continue
		}
		if destination != "" && r.Destination != destination {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (s *SeatService) Cities(ctx context.Context) ([]string, error) {
	routes, err := s.catalog.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("路線一覧の取得に失敗: %w", err)
	}
	return catalog.Cities(routes), nil
}

func (s *SeatService) Operators(ctx context.Context) ([]*catalog.Operator, error) {
	operators, err := s.catalog.Operators(ctx)
	if err != nil {
		return nil, fmt.Errorf("運行会社の取得に失敗: %w", err)
	}
	return operators, nil
}

// countAvailableSeats は確定予約のない座席数を返す
// キャッシュにない場合だけ台帳を読み、同じ呼び出しの中では読み込み結果を使い回す
func (s *SeatService) countAvailableSeats(ctx context.Context, bus *catalog.Bus, date string, bookings *[]*booking.Booking) (int, error) {
	// キャッシュから取得を試みる
	if s.cache != nil {
		count, err := s.cache.GetAvailableCount(ctx, bus.ID, date)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("bus_id", bus.ID), zap.String("date", date), zap.Int("count", count))
			return count, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	if *bookings == nil {
		all, err := s.ledger.ReadAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
		}
		*bookings = all
	}

	booked := booking.ConfirmedSeats(*bookings, bus.ID, date)
	count := 0
	for _, st := range bus.Seats {
		if _, ok := booked[st.ID]; !ok {
			count++
		}
	}

	// キャッシュに保存
	if s.cache != nil {
		if cacheErr := s.cache.SetAvailableCount(ctx, bus.ID, date, count, seatCacheTTL); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}
	return count, nil
}

// InvalidateCache はバス・日付の空席数キャッシュを無効化する
func (s *SeatService) InvalidateCache(ctx context.Context, busID, date string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, busID, date); err != nil {
			logger.Warn("キャッシュ無効化エラー", zap.Error(err))
		}
	}
}

func (s *SeatService) findBus(ctx context.Context, busID string) (*catalog.Bus, error) {
	buses, err := s.catalog.Buses(ctx)
	if err != nil {
		return nil, fmt.Errorf("バス一覧の取得に失敗: %w", err)
	}
	return catalog.FindBus(buses, busID)
}
