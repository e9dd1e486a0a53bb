package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Routes はAPIに登録するハンドラー一式
type Routes struct {
	Seats     *SeatHandler
	Bookings  *BookingHandler
	Catalog   *CatalogHandler
	Health    *HealthHandler
	WebSocket http.Handler
}

// RegisterRoutes はルーティングを登録する
func RegisterRoutes(e *echo.Echo, r Routes) {
	g := e.Group("/api")

	g.GET("/health", r.Health.Check)

	g.GET("/routes", r.Catalog.ListRoutes)
	g.GET("/routes/cities", r.Catalog.Cities)
	g.GET("/operators", r.Catalog.Operators)
	g.GET("/buses", r.Catalog.ListBuses)
	g.GET("/buses/:busId", r.Catalog.GetBus)

	g.GET("/buses/:busId/seats", r.Seats.GetSeats)
	g.POST("/buses/:busId/seats/lock", r.Seats.Lock)
	g.POST("/buses/:busId/seats/unlock", r.Seats.Unlock)

	g.POST("/book", r.Bookings.Book)
	g.POST("/cancel", r.Bookings.Cancel)
	g.POST("/reschedule", r.Bookings.Reschedule)
	g.GET("/tickets/:pnr", r.Bookings.GetTicket)

	if r.WebSocket != nil {
		e.GET("/ws", echo.WrapHandler(r.WebSocket))
	}
}
