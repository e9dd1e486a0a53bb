package filestore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
)

// カタログのファイル名
const (
	BusesFile     = "buses.json"
	RoutesFile    = "routes.json"
	OperatorsFile = "operators.json"
)

type seatRecord struct {
	ID     string `json:"id"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
	Type   string `json:"type"`
}

type busRecord struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	OperatorID string          `json:"operatorId"`
	RouteID    string          `json:"routeId"`
	Departure  string          `json:"departure"`
	Arrival    string          `json:"arrival"`
	Price      decimal.Decimal `json:"price"`
	Seats      []seatRecord    `json:"seats"`
}

type routeRecord struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Distance    int    `json:"distance"`
	Duration    string `json:"duration"`
}

type operatorRecord struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// Catalog はJSONファイルから読み込む参照カタログ
// 起動時に一度だけ読み込み、以後は変更しない
type Catalog struct {
	buses     []*catalog.Bus
	routes    []*catalog.Route
	operators []*catalog.Operator
}

// LoadCatalog はデータディレクトリからカタログを読み込む
func LoadCatalog(dataDir string) (*Catalog, error) {
	var (
		buses     []busRecord
		routes    []routeRecord
		operators []operatorRecord
	)
	files := []struct {
		name string
		v    any
	}{
		{BusesFile, &buses},
		{RoutesFile, &routes},
		{OperatorsFile, &operators},
	}
	for _, f := range files {
		exists, err := readJSON(filepath.Join(dataDir, f.name), f.v)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("カタログファイルがありません: %s", f.name)
		}
	}

	c := &Catalog{}
	for _, b := range buses {
		bus := &catalog.Bus{
			ID:         b.ID,
			Name:       b.Name,
			Type:       b.Type,
			OperatorID: b.OperatorID,
			RouteID:    b.RouteID,
			Departure:  b.Departure,
			Arrival:    b.Arrival,
			Price:      b.Price,
			Seats:      make([]catalog.Seat, 0, len(b.Seats)),
		}
		for _, s := range b.Seats {
			bus.Seats = append(bus.Seats, catalog.Seat{ID: s.ID, Row: s.Row, Column: s.Column, Type: s.Type})
		}
		c.buses = append(c.buses, bus)
	}
	for _, r := range routes {
		c.routes = append(c.routes, &catalog.Route{
			ID:          r.ID,
			Source:      r.Source,
			Destination: r.Destination,
			Distance:    r.Distance,
			Duration:    r.Duration,
		})
	}
	for _, o := range operators {
		c.operators = append(c.operators, &catalog.Operator{ID: o.ID, Name: o.Name, Rating: o.Rating})
	}
	return c, nil
}

var _ catalog.Repository = (*Catalog)(nil)

// Buses は全バスを返す
func (c *Catalog) Buses(ctx context.Context) ([]*catalog.Bus, error) {
	return c.buses, nil
}

// Routes は全路線を返す
func (c *Catalog) Routes(ctx context.Context) ([]*catalog.Route, error) {
	return c.routes, nil
}

// Operators は全運行会社を返す
func (c *Catalog) Operators(ctx context.Context) ([]*catalog.Operator, error) {
	return c.operators, nil
}
