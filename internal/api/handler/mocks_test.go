package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
)

// MockSeatLockService はSeatLockServiceInterfaceのモック
type MockSeatLockService struct {
	mock.Mock
}

func (m *MockSeatLockService) LockSeat(ctx context.Context, input application.SeatInput) (*application.SeatLockResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.SeatLockResult), args.Error(1)
}

func (m *MockSeatLockService) ReleaseLock(ctx context.Context, input application.SeatInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

// MockSeatService はSeatServiceInterfaceのモック
type MockSeatService struct {
	mock.Mock
}

func (m *MockSeatService) GetSeatsWithState(ctx context.Context, busID, userID, date string) ([]seat.State, error) {
	args := m.Called(ctx, busID, userID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]seat.State), args.Error(1)
}

func (m *MockSeatService) ListBuses(ctx context.Context, routeID, date string) ([]*application.BusSummary, error) {
	args := m.Called(ctx, routeID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*application.BusSummary), args.Error(1)
}

func (m *MockSeatService) GetBus(ctx context.Context, busID, date string) (*application.BusSummary, error) {
	args := m.Called(ctx, busID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BusSummary), args.Error(1)
}

func (m *MockSeatService) ListRoutes(ctx context.Context, source, destination string) ([]*catalog.Route, error) {
	args := m.Called(ctx, source, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalog.Route), args.Error(1)
}

func (m *MockSeatService) Cities(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSeatService) Operators(ctx context.Context) ([]*catalog.Operator, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalog.Operator), args.Error(1)
}

// MockBookingService はBookingServiceInterfaceのモック
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) BookSeat(ctx context.Context, input application.BookSeatInput) (*application.BookingResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.BookingResult), args.Error(1)
}

func (m *MockBookingService) CancelBooking(ctx context.Context, pnr string) (*application.CancelResult, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.CancelResult), args.Error(1)
}

func (m *MockBookingService) RescheduleBooking(ctx context.Context, input application.RescheduleInput) (*application.RescheduleResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.RescheduleResult), args.Error(1)
}

func (m *MockBookingService) GetTicket(ctx context.Context, pnr string) (*application.TicketView, error) {
	args := m.Called(ctx, pnr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.TicketView), args.Error(1)
}

type testAPI struct {
	echo     *echo.Echo
	locks    *MockSeatLockService
	seats    *MockSeatService
	bookings *MockBookingService
}

func newTestAPI() *testAPI {
	a := &testAPI{
		echo:     NewTestEcho(),
		locks:    new(MockSeatLockService),
		seats:    new(MockSeatService),
		bookings: new(MockBookingService),
	}
	RegisterRoutes(a.echo, Routes{
		Seats:    NewSeatHandler(a.locks, a.seats),
		Bookings: NewBookingHandler(a.bookings),
		Catalog:  NewCatalogHandler(a.seats),
		Health:   NewHealthHandler(),
	})
	return a
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) get(path string) *httptest.ResponseRecorder {
	return a.do(http.MethodGet, path, "")
}

func (a *testAPI) post(path, body string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, path, body)
}
