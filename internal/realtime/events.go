package realtime

import (
	"encoding/json"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

// クライアントから受け取るメッセージ
const (
	TypeJoin        = "bus:join"
	TypeLeave       = "bus:leave"
	TypeSeatSelect  = "seat:select"
	TypeSeatRelease = "seat:release"
	TypeSeatBook    = "seat:book"
)

// クライアントに送るメッセージ
const (
	TypeSnapshot      = "seats:snapshot"
	TypeViewers       = "bus:viewers"
	TypeSelectResult  = "seat:select:result"
	TypeReleaseResult = "seat:release:result"
	TypeBookResult    = "seat:book:result"
	TypeSeatUpdated   = "seat:updated"
	TypeSeatExpired   = "seat:expired"
	TypeError         = "error"
)

// Envelope はwebsocket上のメッセージ形式
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event は送信待ちのメッセージ
// render が設定されている場合は受信者ごとに内容を組み立てる
type Event struct {
	Type    string
	Payload any
	render  func(userID string) any
}

type joinRequest struct {
	BusID  string `json:"busId"`
	UserID string `json:"userId"`
	Date   string `json:"date"`
}

type leaveRequest struct {
	BusID string `json:"busId"`
	Date  string `json:"date"`
}

type seatRequest struct {
	BusID  string `json:"busId"`
	SeatID string `json:"seatId"`
	UserID string `json:"userId"`
	Date   string `json:"date"`
}

type bookRequest struct {
	BusID         string `json:"busId"`
	SeatID        string `json:"seatId"`
	UserID        string `json:"userId"`
	PassengerName string `json:"passengerName"`
	Phone         string `json:"phone"`
	Date          string `json:"date"`
}

type seatStatePayload struct {
	ID       string  `json:"id"`
	Row      int     `json:"row"`
	Column   int     `json:"column"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	LockedBy *string `json:"lockedBy"`
	LockType *string `json:"lockType"`
	TTL      *int    `json:"ttl"`
}

type snapshotPayload struct {
	BusID string             `json:"busId"`
	Date  string             `json:"date"`
	Seats []seatStatePayload `json:"seats"`
}

type viewersPayload struct {
	BusID string `json:"busId"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type seatUpdatedPayload struct {
	BusID    string  `json:"busId"`
	SeatID   string  `json:"seatId"`
	Date     string  `json:"date"`
	Status   string  `json:"status"`
	LockedBy *string `json:"lockedBy"`
	LockType *string `json:"lockType"`
	TTL      *int    `json:"ttl"`
}

type seatExpiredPayload struct {
	BusID       string `json:"busId"`
	SeatID      string `json:"seatId"`
	Date        string `json:"date"`
	ExpiredType string `json:"expiredType"`
}

type resultPayload struct {
	Success bool   `json:"success"`
	BusID   string `json:"busId"`
	SeatID  string `json:"seatId"`
	Date    string `json:"date"`
	Error   string `json:"error,omitempty"`
}

type bookResultPayload struct {
	resultPayload
	Booking   *bookingPayload `json:"booking,omitempty"`
	QRPayload *ticketPayload  `json:"qrPayload,omitempty"`
}

type bookingPayload struct {
	ID            string `json:"id"`
	PNR           string `json:"pnr"`
	BusID         string `json:"busId"`
	SeatID        string `json:"seatId"`
	PassengerName string `json:"passengerName"`
	Phone         string `json:"phone"`
	Date          string `json:"date"`
	Price         string `json:"price"`
	Status        string `json:"status"`
}

type ticketPayload struct {
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

type errorPayload struct {
	Error string `json:"error"`
}

func snapshotEvent(room seatlock.Room, states []seat.State) Event {
	seats := make([]seatStatePayload, 0, len(states))
	for _, st := range states {
		p := seatStatePayload{
			ID: st.ID, Row: st.Row, Column: st.Column, Type: st.Type,
			Status: string(st.Status), LockedBy: st.LockedBy, TTL: st.TTLSeconds,
		}
		if st.LockKind != nil {
			kind := string(*st.LockKind)
			p.LockType = &kind
		}
		seats = append(seats, p)
	}
	return Event{Type: TypeSnapshot, Payload: snapshotPayload{BusID: room.BusID, Date: room.Date, Seats: seats}}
}

func viewersEvent(room seatlock.Room, count int) Event {
	return Event{Type: TypeViewers, Payload: viewersPayload{BusID: room.BusID, Date: room.Date, Count: count}}
}

// seatUpdatedEvent は受信者自身の仮押さえ・ロックを mine として配信する
func seatUpdatedEvent(u seat.Update) Event {
	return Event{
		Type: TypeSeatUpdated,
		render: func(userID string) any {
			p := seatUpdatedPayload{
				BusID:  u.Key.BusID,
				SeatID: u.Key.SeatID,
				Date:   u.Key.Date,
				Status: string(u.Status),
			}
			if u.OwnerID != "" {
				owner := u.OwnerID
				kind := string(u.LockKind)
				ttl := u.TTLSeconds
				p.LockedBy = &owner
				p.LockType = &kind
				p.TTL = &ttl
				if userID != "" && owner == userID {
					p.Status = string(seat.StatusMine)
				}
			}
			return p
		},
	}
}

func seatExpiredEvent(e seat.Expiry) Event {
	return Event{Type: TypeSeatExpired, Payload: seatExpiredPayload{
		BusID: e.Key.BusID, SeatID: e.Key.SeatID, Date: e.Key.Date, ExpiredType: string(e.ExpiredKind),
	}}
}

func resultEvent(typ string, key seatlock.Key, success bool, err error) Event {
	p := resultPayload{Success: success && err == nil, BusID: key.BusID, SeatID: key.SeatID, Date: key.Date}
	if err != nil {
		p.Error = err.Error()
	}
	return Event{Type: typ, Payload: p}
}

func bookResultEvent(key seatlock.Key, res *application.BookingResult, err error) Event {
	p := bookResultPayload{resultPayload: resultPayload{Success: err == nil, BusID: key.BusID, SeatID: key.SeatID, Date: key.Date}}
	if err != nil {
		p.Error = err.Error()
		return Event{Type: TypeBookResult, Payload: p}
	}
	p.Booking = toBookingPayload(res.Booking)
	if t := res.Ticket; t != nil {
		p.QRPayload = &ticketPayload{
			PNR: t.PNR, Operator: t.Operator, Bus: t.Bus, Route: t.Route, Seat: t.Seat,
			Date: t.Date, Departure: t.Departure, Passenger: t.Passenger, Checksum: t.Checksum,
		}
	}
	return Event{Type: TypeBookResult, Payload: p}
}

func toBookingPayload(b *booking.Booking) *bookingPayload {
	return &bookingPayload{
		ID: b.ID, PNR: b.PNR, BusID: b.BusID, SeatID: b.SeatID,
		PassengerName: b.PassengerName, Phone: b.Phone, Date: b.Date,
		Price: b.Price.String(), Status: string(b.Status),
	}
}

func errorEvent(err error) Event {
	return Event{Type: TypeError, Payload: errorPayload{Error: err.Error()}}
}
