package handler

import (
	"time"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
)

type SeatStateResponse struct {
	ID       string  `json:"id" example:"1A"`
	Row      int     `json:"row" example:"1"`
	Column   int     `json:"column" example:"1"`
	Type     string  `json:"type" example:"window"`
	Status   string  `json:"status" example:"available"`
	LockedBy *string `json:"lockedBy"`
	LockType *string `json:"lockType"`
	TTL      *int    `json:"ttl"`
}

func toSeatStateResponse(s seat.State) SeatStateResponse {
	resp := SeatStateResponse{
		ID: s.ID, Row: s.Row, Column: s.Column, Type: s.Type,
		Status: string(s.Status), LockedBy: s.LockedBy, TTL: s.TTLSeconds,
	}
	if s.LockKind != nil {
		kind := string(*s.LockKind)
		resp.LockType = &kind
	}
	return resp
}

type OperatorResponse struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

func toOperatorResponse(o *catalog.Operator) *OperatorResponse {
	if o == nil {
		return nil
	}
	return &OperatorResponse{ID: o.ID, Name: o.Name, Rating: o.Rating}
}

type RouteResponse struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Distance    int    `json:"distance"`
	Duration    string `json:"duration"`
}

func toRouteResponse(r *catalog.Route) *RouteResponse {
	if r == nil {
		return nil
	}
	return &RouteResponse{ID: r.ID, Source: r.Source, Destination: r.Destination, Distance: r.Distance, Duration: r.Duration}
}

type BusResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	RouteID        string            `json:"routeId"`
	Departure      string            `json:"departure" example:"09:00"`
	Arrival        string            `json:"arrival" example:"15:00"`
	Price          string            `json:"price" example:"850"`
	TotalSeats     int               `json:"totalSeats"`
	AvailableSeats int               `json:"availableSeats"`
	Operator       *OperatorResponse `json:"operator"`
}

func toBusResponse(s *application.BusSummary) BusResponse {
	return BusResponse{
		ID:             s.Bus.ID,
		Name:           s.Bus.Name,
		Type:           s.Bus.Type,
		RouteID:        s.Bus.RouteID,
		Departure:      s.Bus.Departure,
		Arrival:        s.Bus.Arrival,
		Price:          s.Bus.Price.String(),
		TotalSeats:     s.Bus.TotalSeats(),
		AvailableSeats: s.AvailableSeats,
		Operator:       toOperatorResponse(s.Operator),
	}
}

type BookingResponse struct {
	ID            string     `json:"id"`
	PNR           string     `json:"pnr" example:"AB12CD"`
	PreviousPNR   string     `json:"previousPnr,omitempty"`
	RescheduledTo string     `json:"rescheduledTo,omitempty"`
	BusID         string     `json:"busId"`
	SeatID        string     `json:"seatId"`
	UserID        string     `json:"userId"`
	PassengerName string     `json:"passengerName"`
	Phone         string     `json:"phone"`
	Date          string     `json:"date" example:"2025-06-01"`
	Price         string     `json:"price"`
	Status        string     `json:"status" example:"confirmed"`
	BookedAt      time.Time  `json:"bookedAt"`
	CancelledAt   *time.Time `json:"cancelledAt,omitempty"`
	Penalty       *string    `json:"penalty,omitempty"`
	Refund        *string    `json:"refund,omitempty"`
}

func toBookingResponse(b *booking.Booking) *BookingResponse {
	if b == nil {
		return nil
	}
	resp := &BookingResponse{
		ID: b.ID, PNR: b.PNR, PreviousPNR: b.PreviousPNR, RescheduledTo: b.RescheduledTo,
		BusID: b.BusID, SeatID: b.SeatID, UserID: b.UserID,
		PassengerName: b.PassengerName, Phone: b.Phone, Date: b.Date,
		Price: b.Price.String(), Status: string(b.Status),
		BookedAt: b.BookedAt, CancelledAt: b.CancelledAt,
	}
	if b.Penalty != nil {
		p := b.Penalty.String()
		resp.Penalty = &p
	}
	if b.Refund != nil {
		r := b.Refund.String()
		resp.Refund = &r
	}
	return resp
}

type TicketResponse struct {
	PNR       string `json:"pnr"`
	Operator  string `json:"operator"`
	Bus       string `json:"bus"`
	Route     string `json:"route"`
	Seat      string `json:"seat"`
	Date      string `json:"date"`
	Departure string `json:"departure"`
	Passenger string `json:"passenger"`
	Checksum  string `json:"checksum"`
}

func toTicketResponse(t *application.TicketPayload) *TicketResponse {
	if t == nil {
		return nil
	}
	return &TicketResponse{
		PNR: t.PNR, Operator: t.Operator, Bus: t.Bus, Route: t.Route, Seat: t.Seat,
		Date: t.Date, Departure: t.Departure, Passenger: t.Passenger, Checksum: t.Checksum,
	}
}
