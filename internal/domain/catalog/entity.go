package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Seat は車両の座席配置を表す
type Seat struct {
	ID     string
	Row    int
	Column int
	Type   string
}

// Bus は運行バス（予約対象のリソース）を表す
type Bus struct {
	ID         string
	Name       string
	Type       string
	OperatorID string
	RouteID    string
	Departure  string // HH:MM
	Arrival    string // HH:MM
	Price      decimal.Decimal
	Seats      []Seat
}

// TotalSeats は座席数を返す
func (b *Bus) TotalSeats() int {
	return len(b.Seats)
}

// FindSeat は座席IDから座席を探す
func (b *Bus) FindSeat(seatID string) (*Seat, bool) {
	for i := range b.Seats {
		if b.Seats[i].ID == seatID {
			return &b.Seats[i], true
		}
	}
	return nil, false
}

// DepartureAt は乗車日の出発時刻を返す
func (b *Bus) DepartureAt(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+b.Departure, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("出発時刻の解析に失敗: %w", err)
	}
	return t, nil
}

// Route は区間を表す
type Route struct {
	ID          string
	Source      string
	Destination string
	Distance    int
	Duration    string
}

// Label は "出発地 → 到着地" 形式の表示名を返す
func (r *Route) Label() string {
	return r.Source + " → " + r.Destination
}

// Operator は運行会社を表す
type Operator struct {
	ID     string
	Name   string
	Rating float64
}
