package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/filestore"
	redisinfra "github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/redis"
)

const (
	testBusID   = "bus-101"
	testDate    = "2025-06-01"
	testSecret  = "test-secret"
	testHoldTTL = 30 * time.Second
	testLockTTL = 10 * time.Minute
)

// === Test doubles ===

type stubCatalog struct {
	buses     []*catalog.Bus
	routes    []*catalog.Route
	operators []*catalog.Operator
	err       error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		buses: []*catalog.Bus{
			{
				ID: testBusID, Name: "Night Rider", Type: "AC Sleeper", OperatorID: "op-1", RouteID: "route-1",
				Departure: "09:00", Arrival: "15:00", Price: decimal.NewFromInt(850),
				Seats: []catalog.Seat{
					{ID: "1A", Row: 1, Column: 1, Type: "window"},
					{ID: "1B", Row: 1, Column: 2, Type: "aisle"},
					{ID: "2A", Row: 2, Column: 1, Type: "window"},
					{ID: "2B", Row: 2, Column: 2, Type: "aisle"},
				},
			},
			{
				ID: "bus-102", Name: "Day Express", Type: "Seater", OperatorID: "op-2", RouteID: "route-1",
				Departure: "13:30", Arrival: "19:00", Price: decimal.NewFromInt(600),
				Seats: []catalog.Seat{
					{ID: "1A", Row: 1, Column: 1, Type: "window"},
					{ID: "1B", Row: 1, Column: 2, Type: "aisle"},
				},
			},
			{
				ID: "bus-201", Name: "Coastal", Type: "Seater", OperatorID: "op-1", RouteID: "route-2",
				Departure: "07:00", Arrival: "10:00", Price: decimal.NewFromInt(400),
				Seats: []catalog.Seat{{ID: "1A", Row: 1, Column: 1, Type: "window"}},
			},
		},
		routes: []*catalog.Route{
			{ID: "route-1", Source: "Mumbai", Destination: "Pune", Distance: 150, Duration: "6h"},
			{ID: "route-2", Source: "Chennai", Destination: "Bangalore", Distance: 350, Duration: "3h"},
		},
		operators: []*catalog.Operator{
			{ID: "op-1", Name: "RedLine Travels", Rating: 4.5},
			{ID: "op-2", Name: "BlueSky Tours", Rating: 4.1},
		},
	}
}

func (c *stubCatalog) Buses(ctx context.Context) ([]*catalog.Bus, error) {
	return c.buses, c.err
}

func (c *stubCatalog) Routes(ctx context.Context) ([]*catalog.Route, error) {
	return c.routes, c.err
}

func (c *stubCatalog) Operators(ctx context.Context) ([]*catalog.Operator, error) {
	return c.operators, c.err
}

// recordingBroadcaster は配信されたイベントを記録する
type recordingBroadcaster struct {
	mu       sync.Mutex
	updates  []seat.Update
	expiries []seat.Expiry
}

func (b *recordingBroadcaster) BroadcastSeatUpdate(ctx context.Context, u seat.Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, u)
}

func (b *recordingBroadcaster) BroadcastSeatExpired(ctx context.Context, e seat.Expiry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiries = append(b.expiries, e)
}

func (b *recordingBroadcaster) Updates() []seat.Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]seat.Update(nil), b.updates...)
}

func (b *recordingBroadcaster) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = nil
	b.expiries = nil
}

type recordingObserver struct {
	mu        sync.Mutex
	forgotten []seatlock.Key
}

func (o *recordingObserver) Forget(key seatlock.Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forgotten = append(o.forgotten, key)
}

// MockPublisher implements booking.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event booking.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStore implements seatlock.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) AcquireHold(ctx context.Context, key seatlock.Key, userID string, ttl time.Duration) (seatlock.HoldResult, error) {
	args := m.Called(ctx, key, userID, ttl)
	return args.Get(0).(seatlock.HoldResult), args.Error(1)
}

func (m *MockStore) AcquireLock(ctx context.Context, key seatlock.Key, userID string, ttl time.Duration) (seatlock.LockResult, error) {
	args := m.Called(ctx, key, userID, ttl)
	return args.Get(0).(seatlock.LockResult), args.Error(1)
}

func (m *MockStore) ReleaseHold(ctx context.Context, key seatlock.Key, userID string) (bool, error) {
	args := m.Called(ctx, key, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ReleaseLock(ctx context.Context, key seatlock.Key, userID string) (bool, error) {
	args := m.Called(ctx, key, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, key seatlock.Key) (*seatlock.SeatLock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seatlock.SeatLock), args.Error(1)
}

func (m *MockStore) List(ctx context.Context, busID, date string) (map[string]*seatlock.SeatLock, error) {
	args := m.Called(ctx, busID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*seatlock.SeatLock), args.Error(1)
}

func (m *MockStore) ListAll(ctx context.Context) (map[seatlock.Room]map[string]seatlock.Kind, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[seatlock.Room]map[string]seatlock.Kind), args.Error(1)
}

func (m *MockStore) TrackedKey(ctx context.Context, userID string, kind seatlock.Kind) (*seatlock.Key, error) {
	args := m.Called(ctx, userID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seatlock.Key), args.Error(1)
}

// === Test environment ===

type testEnv struct {
	mr          *miniredis.Miniredis
	store       *redisinfra.SeatLockStore
	ledger      *filestore.Ledger
	catalog     *stubCatalog
	broadcaster *recordingBroadcaster
	observer    *recordingObserver
	locks       *SeatLockService
	seats       *SeatService
	bookings    *BookingService
}

func setupTestEnv(t *testing.T, opts ...redisinfra.SeatLockStoreOption) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		mr:          mr,
		store:       redisinfra.NewSeatLockStore(client, opts...),
		ledger:      filestore.NewLedger(t.TempDir()),
		catalog:     newStubCatalog(),
		broadcaster: &recordingBroadcaster{},
		observer:    &recordingObserver{},
	}

	env.locks = NewSeatLockService(env.store, env.catalog, env.ledger, testHoldTTL, testLockTTL)
	env.locks.SetBroadcaster(env.broadcaster)
	env.locks.SetReleaseObserver(env.observer)

	env.seats = NewSeatService(env.store, env.catalog, env.ledger, redisinfra.NewSeatCache(client))

	env.bookings = NewBookingService(env.ledger, env.store, env.catalog, env.seats, testSecret)
	env.bookings.SetBroadcaster(env.broadcaster)
	return env
}

func seatInput(seatID, userID string) SeatInput {
	return SeatInput{BusID: testBusID, SeatID: seatID, UserID: userID, Date: testDate}
}

func testKey(seatID string) seatlock.Key {
	return seatlock.NewKey(testBusID, testDate, seatID)
}

func (e *testEnv) confirmBooking(t *testing.T, seatID, userID string) *booking.Booking {
	t.Helper()
	ctx := context.Background()
	_, err := e.locks.LockSeat(ctx, seatInput(seatID, userID))
	require.NoError(t, err)

	res, err := e.bookings.BookSeat(ctx, BookSeatInput{
		BusID: testBusID, SeatID: seatID, UserID: userID, PassengerName: "Asha", Phone: "9999999999", Date: testDate,
	})
	require.NoError(t, err)
	return res.Booking
}
