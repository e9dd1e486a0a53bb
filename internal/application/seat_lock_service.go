package application

import (
	"context"
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

// メトリクスの操作名
const (
	opHold            = "hold"
	opLock            = "lock"
	opRelease         = "release"
	opReleaseLock     = "release_lock"
	opReleaseUserHold = "release_user_hold"
)

// SeatLockService は仮押さえ・ロックの取得と解放を調停する
type SeatLockService struct {
	store       seatlock.Store
	catalog     catalog.Repository
	ledger      booking.Ledger
	broadcaster Broadcaster
	observer    ReleaseObserver
	metrics     *metrics.Metrics
	holdTTL     time.Duration
	lockTTL     time.Duration
	now         func() time.Time
}

func NewSeatLockService(store seatlock.Store, cat catalog.Repository, ledger booking.Ledger, holdTTL, lockTTL time.Duration) *SeatLockService {
	return &SeatLockService{
		store:       store,
		catalog:     cat,
		ledger:      ledger,
		broadcaster: nopBroadcaster{},
		holdTTL:     holdTTL,
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

// SetBroadcaster は配信先を設定する（Hub とは相互に参照するため後から設定する）
func (s *SeatLockService) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	s.broadcaster = b
}

// SetReleaseObserver は明示的な解放の通知先を設定する
func (s *SeatLockService) SetReleaseObserver(o ReleaseObserver) {
	s.observer = o
}

// SetMetrics はメトリクスを設定する
func (s *SeatLockService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// HoldTTL は仮押さえのTTLを返す
func (s *SeatLockService) HoldTTL() time.Duration { return s.holdTTL }

// LockTTL はロックのTTLを返す
func (s *SeatLockService) LockTTL() time.Duration { return s.lockTTL }

type SeatInput struct {
	BusID  string
	SeatID string
	UserID string
	Date   string
}

// SeatLockResult は取得に成功したロックの情報
type SeatLockResult struct {
	Key      seatlock.Key
	Kind     seatlock.Kind
	TTL      time.Duration
	Released []seatlock.Key
}

// HoldSeat は座席を仮押さえする
// 自分のロックがある座席では何もせず、ロックのまま成功を返す
func (s *SeatLockService) HoldSeat(ctx context.Context, input SeatInput) (*SeatLockResult, error) {
	start := time.Now()
	key, err := s.resolveKey(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotBooked(ctx, key); err != nil {
		return nil, err
	}

	res, err := s.store.AcquireHold(ctx, key, input.UserID, s.holdTTL)
	if err != nil {
		s.metrics.ObserveLockOperation(opHold, "error", time.Since(start))
		logger.Warn("仮押さえの取得に失敗", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	if !res.Acquired {
		s.metrics.ObserveLockOperation(opHold, "conflict", time.Since(start))
		logger.Warn("座席は決済中のため仮押さえできません", zap.String("key", key.String()), zap.String("user_id", input.UserID))
		return nil, seatlock.ErrSeatUnavailable
	}
	s.metrics.ObserveLockOperation(opHold, "acquired", time.Since(start))

	result := &SeatLockResult{Key: key, Kind: seatlock.KindHold, TTL: s.holdTTL}
	if res.AlreadyLocked {
		result.Kind = seatlock.KindLock
		result.TTL = s.lockTTL
		lock, err := s.store.Get(ctx, key)
		if err != nil {
			logger.Warn("ロック状態の取得に失敗", zap.String("key", key.String()), zap.Error(err))
		} else if lock != nil {
			result.TTL = lock.TTL
			s.broadcaster.BroadcastSeatUpdate(ctx, seat.LockUpdate(lock))
		}
	} else {
		s.broadcaster.BroadcastSeatUpdate(ctx, seat.LockUpdate(&seatlock.SeatLock{
			Key: key, OwnerID: input.UserID, Kind: seatlock.KindHold, TTL: s.holdTTL,
		}))
	}

	result.Released = s.announceReleased(ctx, res.ReleasedHold, res.ReleasedLock)
	logger.Debug("仮押さえを取得",
		zap.String("key", key.String()),
		zap.String("user_id", input.UserID),
		zap.Bool("already_locked", res.AlreadyLocked),
	)
	return result, nil
}

// LockSeat は決済のために座席をロックする
// 他のユーザーの仮押さえはロックで上書きされる
func (s *SeatLockService) LockSeat(ctx context.Context, input SeatInput) (*SeatLockResult, error) {
	start := time.Now()
	key, err := s.resolveKey(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNotBooked(ctx, key); err != nil {
		return nil, err
	}

	res, err := s.store.AcquireLock(ctx, key, input.UserID, s.lockTTL)
	if err != nil {
		s.metrics.ObserveLockOperation(opLock, "error", time.Since(start))
		logger.Warn("ロックの取得に失敗", zap.String("key", key.String()), zap.Error(err))
		return nil, err
	}
	if !res.Acquired {
		s.metrics.ObserveLockOperation(opLock, "conflict", time.Since(start))
		logger.Warn("座席は他のユーザーが決済中です", zap.String("key", key.String()), zap.String("user_id", input.UserID))
		return nil, seatlock.ErrSeatUnavailable
	}
	s.metrics.ObserveLockOperation(opLock, "acquired", time.Since(start))

	if res.PreemptedHolder != "" {
		logger.Info("他のユーザーの仮押さえをロックで上書き",
			zap.String("key", key.String()),
			zap.String("user_id", input.UserID),
			zap.String("preempted_user_id", res.PreemptedHolder),
		)
	}

	s.broadcaster.BroadcastSeatUpdate(ctx, seat.LockUpdate(&seatlock.SeatLock{
		Key: key, OwnerID: input.UserID, Kind: seatlock.KindLock, TTL: s.lockTTL,
	}))
	released := s.announceReleased(ctx, res.Released, res.ReleasedHold)

	logger.Debug("ロックを取得", zap.String("key", key.String()), zap.String("user_id", input.UserID))
	return &SeatLockResult{Key: key, Kind: seatlock.KindLock, TTL: s.lockTTL, Released: released}, nil
}

// ReleaseSeat は仮押さえ、なければロックを解放する
// 所有していない場合は false を返す
func (s *SeatLockService) ReleaseSeat(ctx context.Context, input SeatInput) (bool, error) {
	start := time.Now()
	key, err := s.resolveKey(ctx, input)
	if err != nil {
		return false, err
	}

	released, err := s.store.ReleaseHold(ctx, key, input.UserID)
	if err == nil && !released {
		released, err = s.store.ReleaseLock(ctx, key, input.UserID)
	}
	if err != nil {
		s.metrics.ObserveLockOperation(opRelease, "error", time.Since(start))
		logger.Warn("座席の解放に失敗", zap.String("key", key.String()), zap.Error(err))
		return false, err
	}
	if !released {
		s.metrics.ObserveLockOperation(opRelease, "not_owner", time.Since(start))
		return false, nil
	}
	s.metrics.ObserveLockOperation(opRelease, "released", time.Since(start))
	s.announceReleased(ctx, &key)

	logger.Debug("座席を解放", zap.String("key", key.String()), zap.String("user_id", input.UserID))
	return true, nil
}

// ReleaseLock はロックを解放する。所有者でなければ ErrNotOwner を返す
func (s *SeatLockService) ReleaseLock(ctx context.Context, input SeatInput) error {
	start := time.Now()
	key, err := s.resolveKey(ctx, input)
	if err != nil {
		return err
	}

	released, err := s.store.ReleaseLock(ctx, key, input.UserID)
	if err != nil {
		s.metrics.ObserveLockOperation(opReleaseLock, "error", time.Since(start))
		logger.Warn("ロックの解放に失敗", zap.String("key", key.String()), zap.Error(err))
		return err
	}
	if !released {
		s.metrics.ObserveLockOperation(opReleaseLock, "not_owner", time.Since(start))
		return seatlock.ErrNotOwner
	}
	s.metrics.ObserveLockOperation(opReleaseLock, "released", time.Since(start))
	s.announceReleased(ctx, &key)

	logger.Debug("ロックを解放", zap.String("key", key.String()), zap.String("user_id", input.UserID))
	return nil
}

// ReleaseUserHold はユーザーの仮押さえを解放する（退室・切断時）
// ロックは決済画面への遷移があり得るため解放しない
func (s *SeatLockService) ReleaseUserHold(ctx context.Context, userID string) (*seatlock.Key, error) {
	if userID == "" {
		return nil, nil
	}
	start := time.Now()

	key, err := s.store.TrackedKey(ctx, userID, seatlock.KindHold)
	if err != nil {
		s.metrics.ObserveLockOperation(opReleaseUserHold, "error", time.Since(start))
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	released, err := s.store.ReleaseHold(ctx, *key, userID)
	if err != nil {
		s.metrics.ObserveLockOperation(opReleaseUserHold, "error", time.Since(start))
		return nil, err
	}
	if !released {
		s.metrics.ObserveLockOperation(opReleaseUserHold, "not_owner", time.Since(start))
		return nil, nil
	}
	s.metrics.ObserveLockOperation(opReleaseUserHold, "released", time.Since(start))
	s.announceReleased(ctx, key)

	logger.Debug("退室により仮押さえを解放", zap.String("key", key.String()), zap.String("user_id", userID))
	return key, nil
}

// resolveKey は入力を検証し、カタログに存在する座席のキーを返す
func (s *SeatLockService) resolveKey(ctx context.Context, input SeatInput) (seatlock.Key, error) {
	if input.SeatID == "" {
		return seatlock.Key{}, seat.ErrSeatIDRequired
	}
	if input.UserID == "" {
		return seatlock.Key{}, seat.ErrUserIDRequired
	}
	date, err := seat.NormalizeDate(input.Date, s.now())
	if err != nil {
		return seatlock.Key{}, err
	}

	buses, err := s.catalog.Buses(ctx)
	if err != nil {
		return seatlock.Key{}, fmt.Errorf("バス一覧の取得に失敗: %w", err)
	}
	bus, err := catalog.FindBus(buses, input.BusID)
	if err != nil {
		return seatlock.Key{}, err
	}
	if _, ok := bus.FindSeat(input.SeatID); !ok {
		return seatlock.Key{}, catalog.ErrSeatNotFound
	}
	return seatlock.NewKey(bus.ID, date, input.SeatID), nil
}

func (s *SeatLockService) ensureNotBooked(ctx context.Context, key seatlock.Key) error {
	bookings, err := s.ledger.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("予約台帳の読み込みに失敗: %w", err)
	}
	if booking.FindConfirmed(bookings, key) != nil {
		return booking.ErrSeatAlreadyBooked
	}
	return nil
}

// announceReleased は解放されたキーを空席として配信し、期限切れ検出から外す
func (s *SeatLockService) announceReleased(ctx context.Context, keys ...*seatlock.Key) []seatlock.Key {
	var released []seatlock.Key
	for _, k := range keys {
		if k == nil {
			continue
		}
		if s.observer != nil {
			s.observer.Forget(*k)
		}
		s.broadcaster.BroadcastSeatUpdate(ctx, seat.AvailableUpdate(*k))
		released = append(released, *k)
	}
	return released
}

