package handler

import (
	"context"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
)

// SeatLockServiceInterface は座席ロックサービスのインターフェース
type SeatLockServiceInterface interface {
	LockSeat(ctx context.Context, input application.SeatInput) (*application.SeatLockResult, error)
	ReleaseLock(ctx context.Context, input application.SeatInput) error
}

// SeatServiceInterface は座席状態とカタログ参照のインターフェース
type SeatServiceInterface interface {
	GetSeatsWithState(ctx context.Context, busID, userID, date string) ([]seat.State, error)
	ListBuses(ctx context.Context, routeID, date string) ([]*application.BusSummary, error)
	GetBus(ctx context.Context, busID, date string) (*application.BusSummary, error)
	ListRoutes(ctx context.Context, source, destination string) ([]*catalog.Route, error)
	Cities(ctx context.Context) ([]string, error)
	Operators(ctx context.Context) ([]*catalog.Operator, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	BookSeat(ctx context.Context, input application.BookSeatInput) (*application.BookingResult, error)
	CancelBooking(ctx context.Context, pnr string) (*application.CancelResult, error)
	RescheduleBooking(ctx context.Context, input application.RescheduleInput) (*application.RescheduleResult, error)
	GetTicket(ctx context.Context, pnr string) (*application.TicketView, error)
}
