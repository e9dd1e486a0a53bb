package catalog

import (
	"context"
	"sort"
)

// Repository は参照カタログ（読み取り専用）のインターフェース
type Repository interface {
	// Buses は全バスを返す
	Buses(ctx context.Context) ([]*Bus, error)

	// Routes は全路線を返す
	Routes(ctx context.Context) ([]*Route, error)

	// Operators は全運行会社を返す
	Operators(ctx context.Context) ([]*Operator, error)
}

// FindBus はIDからバスを探す
func FindBus(buses []*Bus, id string) (*Bus, error) {
	for _, b := range buses {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, ErrBusNotFound
}

// FindRoute はIDから路線を探す
func FindRoute(routes []*Route, id string) (*Route, error) {
	for _, r := range routes {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrRouteNotFound
}

// FindOperator はIDから運行会社を探す
func FindOperator(operators []*Operator, id string) (*Operator, error) {
	for _, o := range operators {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, ErrOperatorNotFound
}

// Cities は路線に含まれる都市名を重複なくソートして返す
func Cities(routes []*Route) []string {
	seen := make(map[string]struct{})
	cities := make([]string, 0, len(routes)*2)
	for _, r := range routes {
		for _, c := range []string{r.Source, r.Destination} {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cities = append(cities, c)
		}
	}
	sort.Strings(cities)
	return cities
}
