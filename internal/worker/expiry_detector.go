package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/metrics"
)

// LockLister は全ロックをルームごとに返す
type LockLister interface {
	ListAll(ctx context.Context) (map[seatlock.Room]map[string]seatlock.Kind, error)
}

// BookingReader は予約台帳を読み込む
type BookingReader interface {
	ReadAll(ctx context.Context) ([]*booking.Booking, error)
}

// ExpiryNotifier は期限切れをルームに通知する
type ExpiryNotifier interface {
	BroadcastSeatExpired(ctx context.Context, e seat.Expiry)
}

// forgetPolls は Forget されたキーを抑止し続けるポーリング回数
const forgetPolls = 2

// ExpiryDetector はロックストアをポーリングしてTTL切れを検出するワーカー
// ストアは期限切れを通知しないため、前回のポーリング結果との差分から推定する
type ExpiryDetector struct {
	lister   LockLister
	ledger   BookingReader
	notifier ExpiryNotifier
	metrics  *metrics.Metrics
	interval time.Duration

	mu        sync.Mutex
	prev      map[seatlock.Room]map[string]seatlock.Kind
	forgotten map[seatlock.Key]uint64
	polls     uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewExpiryDetector は新しい検出器を作成
func NewExpiryDetector(lister LockLister, ledger BookingReader, notifier ExpiryNotifier, interval time.Duration) *ExpiryDetector {
	return &ExpiryDetector{
		lister:    lister,
		ledger:    ledger,
		notifier:  notifier,
		interval:  interval,
		forgotten: make(map[seatlock.Key]uint64),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetMetrics はメトリクスを設定する
func (d *ExpiryDetector) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// Start は検出器を開始
func (d *ExpiryDetector) Start(ctx context.Context) {
	logger.Info("期限切れ検出器開始", zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	defer close(d.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ検出器停止（コンテキストキャンセル）")
			return
		case <-d.stopCh:
			logger.Info("期限切れ検出器停止（シグナル受信）")
			return
		case <-ticker.C:
			_, _ = d.poll(ctx)
		}
	}
}

// Stop は検出器を停止
func (d *ExpiryDetector) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

// Forget は明示的に解放されたキーを期限切れとして通知しないようにする
func (d *ExpiryDetector) Forget(key seatlock.Key) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgotten[key] = d.polls
}

// poll は1回分の差分検出を行い、通知した期限切れを返す
// ストアの読み込みに失敗した場合は前回の状態を保持する
func (d *ExpiryDetector) poll(ctx context.Context) ([]seat.Expiry, error) {
	current, err := d.lister.ListAll(ctx)
	if err != nil {
		logger.Warn("ロック一覧の取得に失敗", zap.Error(err))
		return nil, err
	}

	d.mu.Lock()
	candidates := d.diff(current)
	d.mu.Unlock()

	// 確定予約による消滅は期限切れではない
	if len(candidates) > 0 {
		bookings, err := d.ledger.ReadAll(ctx)
		if err != nil {
			logger.Warn("予約台帳の読み込みに失敗", zap.Error(err))
			return nil, err
		}
		candidates = d.withoutBooked(candidates, bookings)
	}

	d.mu.Lock()
	candidates = d.withoutForgotten(candidates)
	d.prev = current
	d.polls++
	for key, at := range d.forgotten {
		if d.polls-at >= forgetPolls {
			delete(d.forgotten, key)
		}
	}
	d.mu.Unlock()

	for _, e := range candidates {
		d.notifier.BroadcastSeatExpired(ctx, e)
		d.metrics.IncExpiry(string(e.ExpiredKind))
		logger.Info("座席のロックが期限切れ",
			zap.String("key", e.Key.String()),
			zap.String("kind", string(e.ExpiredKind)),
		)
	}
	logger.Debug("期限切れ検出", zap.Int("rooms", len(current)), zap.Int("expired", len(candidates)))
	return candidates, nil
}

// diff は前回あって今回ないキーを返す
func (d *ExpiryDetector) diff(current map[seatlock.Room]map[string]seatlock.Kind) []seat.Expiry {
	var expired []seat.Expiry
	for room, seats := range d.prev {
		now := current[room]
		for seatID, kind := range seats {
			if _, ok := now[seatID]; ok {
				continue
			}
			expired = append(expired, seat.Expiry{
				Key:         seatlock.NewKey(room.BusID, room.Date, seatID),
				ExpiredKind: kind,
			})
		}
	}
	return expired
}

func (d *ExpiryDetector) withoutBooked(candidates []seat.Expiry, bookings []*booking.Booking) []seat.Expiry {
	kept := candidates[:0]
	for _, e := range candidates {
		if booking.FindConfirmed(bookings, e.Key) != nil {
			d.metrics.IncExpirySuppressed("booked")
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func (d *ExpiryDetector) withoutForgotten(candidates []seat.Expiry) []seat.Expiry {
	kept := candidates[:0]
	for _, e := range candidates {
		if _, ok := d.forgotten[e.Key]; ok {
			d.metrics.IncExpirySuppressed("released")
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
