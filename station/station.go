// Package station holds the docking-station inventory. Every mutation of a
// station's docked and reserved sets happens under that station's own lock.
package station

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/semanticallynull/bikeshare-fleet/bike"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrFull            = errors.New("station is full")
	ErrAlreadyDocked   = errors.New("bike already docked at this station")
	ErrNotDocked       = errors.New("bike not docked at this station")
	ErrReserved        = errors.New("bike is reserved")
	ErrAlreadyReserved = errors.New("bike already reserved")
	ErrNotReserved     = errors.New("bike is not reserved")
	ErrInvalidState    = errors.New("invalid station state")
	ErrNoCharging      = errors.New("charging not available at this station")
)

const MaxCapacity = 100

type Status int

const (
	Active Status = iota
	Full
	Empty
	Maintenance
	Inactive
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Full:
		return "full"
	case Empty:
		return "empty"
	case Maintenance:
		return "maintenance"
	case Inactive:
		return "inactive"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) Scan(i any) error {
	var v string
	switch x := i.(type) {
	case string:
		v = x
	case []byte:
		v = string(x)
	default:
		return fmt.Errorf("%w: cannot scan %T into station status", ErrInvalidArgument, i)
	}
	switch v {
	case "active":
		*s = Active
	case "full":
		*s = Full
	case "empty":
		*s = Empty
	case "maintenance":
		*s = Maintenance
	case "inactive":
		*s = Inactive
	default:
		return fmt.Errorf("%w: unknown station status %q", ErrInvalidArgument, v)
	}
	return nil
}

// Station is a fixed-capacity dock. The docked and reserved sets are never
// exposed; callers get copies or work through the station's methods.
type Station struct {
	id        string
	name      string
	address   string
	latitude  float64
	longitude float64
	capacity  int

	mu       sync.Mutex
	override Status // Active, Maintenance or Inactive
	order    []string
	docked   map[string]*bike.Bike
	reserved map[string]struct{}

	chargingAvailable bool
	chargingRate      float64
}

func New(id, name, address string, latitude, longitude float64, capacity int) (*Station, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return nil, fmt.Errorf("%w: station id cannot be empty", ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: station name cannot be empty", ErrInvalidArgument)
	}
	if capacity < 1 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity must be between 1 and %d", ErrInvalidArgument, MaxCapacity)
	}
	if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
		return nil, fmt.Errorf("%w: invalid coordinates (%f, %f)", ErrInvalidArgument, latitude, longitude)
	}

	return &Station{
		id:        id,
		name:      name,
		address:   strings.TrimSpace(address),
		latitude:  latitude,
		longitude: longitude,
		capacity:  capacity,
		override:  Active,
		docked:    make(map[string]*bike.Bike, capacity),
		reserved:  make(map[string]struct{}),
	}, nil
}

func (s *Station) ID() string         { return s.id }
func (s *Station) Name() string       { return s.name }
func (s *Station) Address() string    { return s.address }
func (s *Station) Capacity() int      { return s.capacity }
func (s *Station) Latitude() float64  { return s.latitude }
func (s *Station) Longitude() float64 { return s.longitude }

// Status derives Active/Full/Empty from occupancy unless an administrative
// Maintenance or Inactive override is in place.
func (s *Station) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Station) status() Status {
	switch s.override {
	case Maintenance, Inactive:
		return s.override
	case Active, Full, Empty:
	}
	switch {
	case s.availableCount() == 0:
		return Empty
	case len(s.docked) >= s.capacity:
		return Full
	default:
		return Active
	}
}

// AddBike docks an Available bike.
func (s *Station) AddBike(b *bike.Bike) error {
	if b == nil {
		return fmt.Errorf("%w: bike cannot be nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDockable(b); err != nil {
		return err
	}
	if st := b.Status(); st != bike.Available {
		return fmt.Errorf("%w: can only dock available bikes, %s is %s", ErrInvalidState, b.ID(), st)
	}

	s.insert(b)
	b.DockAt(s.id)
	return nil
}

// Checkin docks a bike coming back from a ride. arrive runs under the station
// lock once the capacity checks have passed and must leave the bike Available
// and pointing at this station; if it fails nothing is docked.
func (s *Station) Checkin(b *bike.Bike, arrive func(stationID string) error) error {
	if b == nil {
		return fmt.Errorf("%w: bike cannot be nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDockable(b); err != nil {
		return err
	}
	if err := arrive(s.id); err != nil {
		return err
	}

	s.insert(b)
	return nil
}

// HasCapacity reports whether a returning bike could currently be docked.
func (s *Station) HasCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override != Inactive && len(s.docked) < s.capacity
}

func (s *Station) checkDockable(b *bike.Bike) error {
	if s.override == Inactive {
		return fmt.Errorf("%w: station %s is inactive", ErrInvalidState, s.id)
	}
	if len(s.docked) >= s.capacity {
		return fmt.Errorf("%w: %s holds %d/%d", ErrFull, s.id, len(s.docked), s.capacity)
	}
	if _, ok := s.docked[b.ID()]; ok {
		return fmt.Errorf("%w: %s at %s", ErrAlreadyDocked, b.ID(), s.id)
	}
	if other := b.StationID(); other != "" {
		return fmt.Errorf("%w: %s is docked at %s", ErrAlreadyDocked, b.ID(), other)
	}
	return nil
}

func (s *Station) insert(b *bike.Bike) {
	s.docked[b.ID()] = b
	s.order = append(s.order, b.ID())
}

// RemoveBike undocks a bike that is not reserved.
func (s *Station) RemoveBike(id string) (*bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.removable(id)
	if err != nil {
		return nil, err
	}
	s.detach(id)
	b.Undock()
	return b, nil
}

// Checkout hands a docked bike to a rider. depart runs under the station lock
// after the membership checks pass; the bike only leaves the dock if depart
// succeeds, so a rejected start leaves both bike and station untouched.
func (s *Station) Checkout(id string, depart func(*bike.Bike) error) (*bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.override {
	case Maintenance, Inactive:
		return nil, fmt.Errorf("%w: station %s is %s", ErrInvalidState, s.id, s.override)
	case Active, Full, Empty:
	}

	b, err := s.removable(id)
	if err != nil {
		return nil, err
	}
	if err := depart(b); err != nil {
		return nil, err
	}

	s.detach(id)
	return b, nil
}

// CheckoutReserved is Checkout for a bike held by a reservation. The
// reservation is consumed only if depart succeeds.
func (s *Station) CheckoutReserved(id string, depart func(*bike.Bike) error) (*bike.Bike, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.override {
	case Maintenance, Inactive:
		return nil, fmt.Errorf("%w: station %s is %s", ErrInvalidState, s.id, s.override)
	case Active, Full, Empty:
	}

	b, ok := s.docked[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNotDocked, id, s.id)
	}
	if _, ok := s.reserved[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotReserved, id)
	}
	if err := depart(b); err != nil {
		return nil, err
	}

	delete(s.reserved, id)
	s.detach(id)
	return b, nil
}

func (s *Station) removable(id string) (*bike.Bike, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bike id cannot be empty", ErrInvalidArgument)
	}
	b, ok := s.docked[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNotDocked, id, s.id)
	}
	if _, ok := s.reserved[id]; ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrReserved, id, s.id)
	}
	return b, nil
}

func (s *Station) detach(id string) {
	delete(s.docked, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ReserveBike holds a docked bike; the bike itself moves to Reserved.
func (s *Station) ReserveBike(id string) error {
	if id == "" {
		return fmt.Errorf("%w: bike id cannot be empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.docked[id]
	if !ok {
		return fmt.Errorf("%w: %s at %s", ErrNotDocked, id, s.id)
	}
	if _, ok := s.reserved[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyReserved, id)
	}
	if err := b.Reserve(); err != nil {
		return err
	}
	s.reserved[id] = struct{}{}
	return nil
}

func (s *Station) CancelReservation(id string) error {
	if id == "" {
		return fmt.Errorf("%w: bike id cannot be empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reserved[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotReserved, id)
	}
	// The hold is dropped even if the bike has since gone to maintenance or
	// been marked broken; only a still-Reserved bike goes back to Available.
	if b := s.docked[id]; b.Status() == bike.Reserved {
		if err := b.CancelReservation(); err != nil {
			return err
		}
	}
	delete(s.reserved, id)
	return nil
}

// Service runs an operator transition on a docked bike under the station
// lock. If the bike was reserved and is no longer in the Reserved state
// afterwards, its hold is dropped and released is true.
func (s *Station) Service(id string, fn func(*bike.Bike) error) (released bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.docked[id]
	if !ok {
		return false, fmt.Errorf("%w: %s at %s", ErrNotDocked, id, s.id)
	}
	if err := fn(b); err != nil {
		return false, err
	}
	if _, held := s.reserved[id]; held && b.Status() != bike.Reserved {
		delete(s.reserved, id)
		return true, nil
	}
	return false, nil
}

// Receive docks an undocked bike that is not in use, for example one coming
// back from the workshop. prepare runs under the station lock after the
// capacity checks and must leave the bike Available.
func (s *Station) Receive(b *bike.Bike, prepare func(*bike.Bike) error) error {
	if b == nil {
		return fmt.Errorf("%w: bike cannot be nil", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDockable(b); err != nil {
		return err
	}
	if err := prepare(b); err != nil {
		return err
	}
	if st := b.Status(); st != bike.Available {
		return fmt.Errorf("%w: can only dock available bikes, %s is %s", ErrInvalidState, b.ID(), st)
	}

	s.insert(b)
	b.DockAt(s.id)
	return nil
}

// PickAvailableBike returns the first rentable bike in docking order, trying
// each preferred type in turn before falling back to any type. It returns nil
// when nothing is rentable or the station is under maintenance or inactive.
func (s *Station) PickAvailableBike(preferred ...bike.Type) *bike.Bike {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.override {
	case Maintenance, Inactive:
		return nil
	case Active, Full, Empty:
	}

	for _, t := range preferred {
		for _, id := range s.order {
			if b := s.docked[id]; b.Type() == t && s.rentable(b) {
				return b
			}
		}
	}
	for _, id := range s.order {
		if b := s.docked[id]; s.rentable(b) {
			return b
		}
	}
	return nil
}

func (s *Station) rentable(b *bike.Bike) bool {
	_, held := s.reserved[b.ID()]
	return !held && b.IsAvailable()
}

func (s *Station) availableCount() int {
	n := 0
	for _, b := range s.docked {
		if s.rentable(b) {
			n++
		}
	}
	return n
}

// AvailableBikesByType lists rentable bikes of one type in docking order.
func (s *Station) AvailableBikesByType(t bike.Type) []*bike.Bike {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*bike.Bike
	for _, id := range s.order {
		if b := s.docked[id]; b.Type() == t && s.rentable(b) {
			out = append(out, b)
		}
	}
	return out
}

// Bikes returns the docked bikes in docking order.
func (s *Station) Bikes() []*bike.Bike {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*bike.Bike, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docked[id])
	}
	return out
}

func (s *Station) ReservedBikeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.reserved))
	for _, id := range s.order {
		if _, ok := s.reserved[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *Station) AvailableBikeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableCount()
}

func (s *Station) TotalBikeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docked)
}

func (s *Station) AvailableDocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity - len(s.docked)
}

func (s *Station) IsFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docked) >= s.capacity
}

func (s *Station) IsEmpty() bool {
	return s.AvailableBikeCount() == 0
}

func (s *Station) SetMaintenance() {
	s.mu.Lock()
	s.override = Maintenance
	s.mu.Unlock()
}

// Activate lifts any administrative override; the status is re-derived from
// current occupancy.
func (s *Station) Activate() {
	s.mu.Lock()
	s.override = Active
	s.mu.Unlock()
}

func (s *Station) Deactivate() {
	s.mu.Lock()
	s.override = Inactive
	s.mu.Unlock()
}

func (s *Station) EnableCharging(hourlyRate float64) error {
	if hourlyRate < 0 {
		return fmt.Errorf("%w: charging rate cannot be negative", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargingAvailable = true
	s.chargingRate = hourlyRate
	return nil
}

func (s *Station) DisableCharging() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargingAvailable = false
	s.chargingRate = 0
}

// ChargeElectricBikes tops up every Available electric bike in the dock and
// returns how many were charged.
func (s *Station) ChargeElectricBikes(amount float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.chargingAvailable {
		return 0, fmt.Errorf("%w: %s", ErrNoCharging, s.id)
	}

	n := 0
	for _, id := range s.order {
		b := s.docked[id]
		if b.Type() != bike.Electric || b.Status() != bike.Available {
			continue
		}
		if err := b.ChargeBattery(amount); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

const earthRadiusKm = 6371.0

// DistanceTo returns the great-circle distance to other in kilometres.
func (s *Station) DistanceTo(other *Station) float64 {
	return s.DistanceFrom(other.latitude, other.longitude)
}

// DistanceFrom returns the great-circle distance to a point in kilometres.
func (s *Station) DistanceFrom(latitude, longitude float64) float64 {
	return Distance(s.latitude, s.longitude, latitude, longitude)
}

// Distance is the haversine distance between two points in kilometres.
func Distance(fromLat, fromLng, toLat, toLng float64) float64 {
	lat1, lat2 := radians(fromLat), radians(toLat)
	dLat := lat2 - lat1
	dLon := radians(toLng - fromLng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Snapshot is a consistent copy of the station's state taken under its lock.
type Snapshot struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Address           string   `json:"address"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	Capacity          int      `json:"capacity"`
	Status            Status   `json:"status"`
	BikeIDs           []string `json:"bikeIds"`
	ReservedBikeIDs   []string `json:"reservedBikeIds"`
	AvailableBikes    int      `json:"availableBikes"`
	AvailableDocks    int      `json:"availableDocks"`
	ChargingAvailable bool     `json:"chargingAvailable"`
	ChargingRate      float64  `json:"chargingRate"`
}

func (s *Station) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                s.id,
		Name:              s.name,
		Address:           s.address,
		Latitude:          s.latitude,
		Longitude:         s.longitude,
		Capacity:          s.capacity,
		Status:            s.status(),
		BikeIDs:           append([]string(nil), s.order...),
		ReservedBikeIDs:   []string{},
		AvailableBikes:    s.availableCount(),
		AvailableDocks:    s.capacity - len(s.docked),
		ChargingAvailable: s.chargingAvailable,
		ChargingRate:      s.chargingRate,
	}
	for _, id := range s.order {
		if _, ok := s.reserved[id]; ok {
			snap.ReservedBikeIDs = append(snap.ReservedBikeIDs, id)
		}
	}
	return snap
}

func (s *Station) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("Station{id=%s name=%s status=%s bikes=%d/%d}", snap.ID, snap.Name, snap.Status, snap.AvailableBikes, snap.Capacity)
}
