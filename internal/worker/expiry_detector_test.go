package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	redisinfra "github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/redis"
)

const (
	testHoldTTL = 30 * time.Second
	testLockTTL = 10 * time.Minute
)

// MockBookingReader はBookingReaderのモック
type MockBookingReader struct {
	mock.Mock
}

func (m *MockBookingReader) ReadAll(ctx context.Context) ([]*booking.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

// MockLockLister はLockListerのモック
type MockLockLister struct {
	mock.Mock
}

func (m *MockLockLister) ListAll(ctx context.Context) (map[seatlock.Room]map[string]seatlock.Kind, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[seatlock.Room]map[string]seatlock.Kind), args.Error(1)
}

type recordingNotifier struct {
	mu       sync.Mutex
	expiries []seat.Expiry
}

func (n *recordingNotifier) BroadcastSeatExpired(ctx context.Context, e seat.Expiry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expiries = append(n.expiries, e)
}

func (n *recordingNotifier) Expiries() []seat.Expiry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]seat.Expiry(nil), n.expiries...)
}

func setupDetector(t *testing.T) (*miniredis.Miniredis, *redisinfra.SeatLockStore, *MockBookingReader, *recordingNotifier, *ExpiryDetector) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := redisinfra.NewSeatLockStore(client)
	ledger := new(MockBookingReader)
	notifier := &recordingNotifier{}
	return mr, store, ledger, notifier, NewExpiryDetector(store, ledger, notifier, time.Second)
}

func key(seatID string) seatlock.Key {
	return seatlock.NewKey("bus-1", "2025-01-01", seatID)
}

func TestNewExpiryDetector(t *testing.T) {
	d := NewExpiryDetector(new(MockLockLister), new(MockBookingReader), &recordingNotifier{}, 3*time.Second)

	assert.NotNil(t, d)
	assert.Equal(t, 3*time.Second, d.interval)
	assert.NotNil(t, d.stopCh)
	assert.NotNil(t, d.doneCh)
}

func TestExpiryDetector_Poll(t *testing.T) {
	ctx := context.Background()

	t.Run("TTL切れでキーごとに1回だけ通知する", func(t *testing.T) {
		mr, store, ledger, notifier, d := setupDetector(t)
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil).Once()

		_, err := store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		_, err = store.AcquireLock(ctx, key("2A"), "user-b", testLockTTL)
		require.NoError(t, err)

		// 1回目は基準となる状態を記録するだけ
		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)

		mr.FastForward(testHoldTTL + time.Second)
		expired, err = d.poll(ctx)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, seat.Expiry{Key: key("1A"), ExpiredKind: seatlock.KindHold}, expired[0])

		// 次のポーリングでは再通知しない
		expired, err = d.poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)

		mr.FastForward(testLockTTL)
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil).Once()
		expired, err = d.poll(ctx)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, seatlock.KindLock, expired[0].ExpiredKind)

		assert.Len(t, notifier.Expiries(), 2)
		ledger.AssertExpectations(t)
	})

	t.Run("確定予約による消滅は通知しない", func(t *testing.T) {
		_, store, ledger, notifier, d := setupDetector(t)

		_, err := store.AcquireLock(ctx, key("1A"), "user-a", testLockTTL)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)

		_, err = store.ReleaseLock(ctx, key("1A"), "user-a")
		require.NoError(t, err)
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{
			{BusID: "bus-1", Date: "2025-01-01", SeatID: "1A", Status: booking.StatusConfirmed},
		}, nil)

		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.Empty(t, notifier.Expiries())
	})

	t.Run("キャンセル済みの予約は抑止しない", func(t *testing.T) {
		mr, store, ledger, _, d := setupDetector(t)

		_, err := store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)

		mr.FastForward(testHoldTTL + time.Second)
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{
			{BusID: "bus-1", Date: "2025-01-01", SeatID: "1A", Status: booking.StatusCancelled},
		}, nil)

		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})

	t.Run("明示的な解放の後は通知しない", func(t *testing.T) {
		_, store, ledger, notifier, d := setupDetector(t)

		_, err := store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)

		_, err = store.ReleaseHold(ctx, key("1A"), "user-a")
		require.NoError(t, err)
		d.Forget(key("1A"))
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil)

		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.Empty(t, notifier.Expiries())
	})

	t.Run("抑止は一定回数のポーリングで解除される", func(t *testing.T) {
		mr, store, ledger, _, d := setupDetector(t)
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil)

		d.Forget(key("1A"))
		_, err := d.poll(ctx)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, d.forgotten)

		_, err = store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)

		mr.FastForward(testHoldTTL + time.Second)
		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})

	t.Run("候補がなければ台帳を読まない", func(t *testing.T) {
		_, store, ledger, _, d := setupDetector(t)

		_, err := store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			_, err = d.poll(ctx)
			require.NoError(t, err)
		}
		ledger.AssertNotCalled(t, "ReadAll", mock.Anything)
	})

	t.Run("ストア障害時は前回の状態を保持する", func(t *testing.T) {
		lister := new(MockLockLister)
		ledger := new(MockBookingReader)
		notifier := &recordingNotifier{}
		d := NewExpiryDetector(lister, ledger, notifier, time.Second)

		room := seatlock.Room{BusID: "bus-1", Date: "2025-01-01"}
		lister.On("ListAll", mock.Anything).Return(map[seatlock.Room]map[string]seatlock.Kind{
			room: {"1A": seatlock.KindHold, "1B": seatlock.KindLock},
		}, nil).Once()
		lister.On("ListAll", mock.Anything).Return(nil, seatlock.ErrStoreUnavailable).Once()
		lister.On("ListAll", mock.Anything).Return(map[seatlock.Room]map[string]seatlock.Kind{
			room: {"1B": seatlock.KindLock},
		}, nil).Once()
		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil)

		_, err := d.poll(ctx)
		require.NoError(t, err)

		_, err = d.poll(ctx)
		assert.ErrorIs(t, err, seatlock.ErrStoreUnavailable)
		assert.Empty(t, notifier.Expiries())

		expired, err := d.poll(ctx)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "1A", expired[0].Key.SeatID)
	})

	t.Run("台帳の読み込みに失敗したら次回に持ち越す", func(t *testing.T) {
		mr, store, ledger, notifier, d := setupDetector(t)

		_, err := store.AcquireHold(ctx, key("1A"), "user-a", testHoldTTL)
		require.NoError(t, err)
		_, err = d.poll(ctx)
		require.NoError(t, err)

		mr.FastForward(testHoldTTL + time.Second)
		ledger.On("ReadAll", mock.Anything).Return(nil, errors.New("read failed")).Once()
		_, err = d.poll(ctx)
		assert.Error(t, err)
		assert.Empty(t, notifier.Expiries())

		ledger.On("ReadAll", mock.Anything).Return([]*booking.Booking{}, nil).Once()
		expired, err := d.poll(ctx)
		require.NoError(t, err)
		assert.Len(t, expired, 1)
	})
}

func TestExpiryDetector_StartStop(t *testing.T) {
	lister := new(MockLockLister)
	lister.On("ListAll", mock.Anything).Return(map[seatlock.Room]map[string]seatlock.Kind{}, nil)

	d := NewExpiryDetector(lister, new(MockBookingReader), &recordingNotifier{}, 10*time.Millisecond)

	t.Run("Stopで停止する", func(t *testing.T) {
		go d.Start(context.Background())
		time.Sleep(50 * time.Millisecond)

		d.Stop()
		lister.AssertCalled(t, "ListAll", mock.Anything)
	})

	t.Run("コンテキストキャンセルで停止する", func(t *testing.T) {
		d := NewExpiryDetector(lister, new(MockBookingReader), &recordingNotifier{}, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		go d.Start(ctx)
		cancel()

		select {
		case <-d.doneCh:
		case <-time.After(time.Second):
			t.Fatal("検出器が停止しませんでした")
		}
	})
}
