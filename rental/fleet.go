package rental

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

// Fleet is the in-memory registry of stations, bikes and riders. It only
// indexes entities; each entity guards its own state.
type Fleet struct {
	mu       sync.RWMutex
	stations map[string]*station.Station
	bikes    map[string]*bike.Bike
	riders   map[string]*customer.Customer
}

func NewFleet() *Fleet {
	return &Fleet{
		stations: map[string]*station.Station{},
		bikes:    map[string]*bike.Bike{},
		riders:   map[string]*customer.Customer{},
	}
}

func (f *Fleet) AddStation(s *station.Station) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.stations[s.ID()]; ok {
		return fmt.Errorf("%w: station %s", ErrDuplicate, s.ID())
	}
	f.stations[s.ID()] = s
	return nil
}

// AddBike registers a bike and, when stationID is set, docks it there.
func (f *Fleet) AddBike(b *bike.Bike, stationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.bikes[b.ID()]; ok {
		return fmt.Errorf("%w: bike %s", ErrDuplicate, b.ID())
	}
	if stationID != "" {
		s, ok := f.stations[stationID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
		}
		if err := s.AddBike(b); err != nil {
			return err
		}
	}
	f.bikes[b.ID()] = b
	return nil
}

func (f *Fleet) AddRider(c *customer.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.riders[c.ID()]; ok {
		return fmt.Errorf("%w: rider %s", ErrDuplicate, c.ID())
	}
	f.riders[c.ID()] = c
	return nil
}

func (f *Fleet) Station(id string) (*station.Station, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.stations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return s, nil
}

func (f *Fleet) Bike(id string) (*bike.Bike, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	b, ok := f.bikes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBikeNotFound, id)
	}
	return b, nil
}

func (f *Fleet) Rider(id string) (*customer.Customer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.riders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRiderNotFound, id)
	}
	return c, nil
}

// Stations returns every station ordered by id.
func (f *Fleet) Stations() []*station.Station {
	f.mu.RLock()
	out := make([]*station.Station, 0, len(f.stations))
	for _, s := range f.stations {
		out = append(out, s)
	}
	f.mu.RUnlock()

	slices.SortFunc(out, func(a, b *station.Station) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

func (f *Fleet) Bikes() []*bike.Bike {
	f.mu.RLock()
	out := make([]*bike.Bike, 0, len(f.bikes))
	for _, b := range f.bikes {
		out = append(out, b)
	}
	f.mu.RUnlock()

	slices.SortFunc(out, func(a, b *bike.Bike) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// StripeCustomer resolves a rider to their payment-provider customer id.
func (f *Fleet) StripeCustomer(riderID string) (string, bool) {
	c, err := f.Rider(riderID)
	if err != nil || c.StripeID() == "" {
		return "", false
	}
	return c.StripeID(), true
}
