// Package bike models a single rentable bike and the state machine that governs
// its availability, battery and service counters.
package bike

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid bike transition")
	ErrInvalidOperation  = errors.New("invalid bike operation")
	ErrBatteryTooLow     = errors.New("battery too low to start ride")
)

// NoCharge is reported as the charge level of bikes without a battery.
const NoCharge = -1.0

type Type int

const (
	Standard Type = iota
	Electric
	Premium
)

func (t Type) String() string {
	switch t {
	case Standard:
		return "standard"
	case Electric:
		return "electric"
	case Premium:
		return "premium"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// DisplayName is the user-facing label for the bike type.
func (t Type) DisplayName() string {
	switch t {
	case Standard:
		return "Standard"
	case Electric:
		return "Electric"
	case Premium:
		return "Premium"
	}
	return t.String()
}

func (t Type) Valid() bool {
	switch t {
	case Standard, Electric, Premium:
		return true
	}
	return false
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t *Type) Scan(i any) error {
	switch v := i.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	}
	return fmt.Errorf("%w: cannot scan %T into bike type", ErrInvalidArgument, i)
}

// ParseType accepts the lower-case names produced by Type.String.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return Standard, nil
	case "electric":
		return Electric, nil
	case "premium":
		return Premium, nil
	}
	return 0, fmt.Errorf("%w: unknown bike type %q", ErrInvalidArgument, s)
}

type Status int

const (
	Available Status = iota
	Reserved
	InUse
	Maintenance
	Broken
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case Reserved:
		return "reserved"
	case InUse:
		return "in_use"
	case Maintenance:
		return "maintenance"
	case Broken:
		return "broken"
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
		return fmt.Errorf("%w: cannot scan %T into bike status", ErrInvalidArgument, i)
	}
	p, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = p
	return nil
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "available":
		return Available, nil
	case "reserved":
		return Reserved, nil
	case "in_use":
		return InUse, nil
	case "maintenance":
		return Maintenance, nil
	case "broken":
		return Broken, nil
	}
	return 0, fmt.Errorf("%w: unknown bike status %q", ErrInvalidArgument, s)
}

// Policy holds the battery and service thresholds applied by the state machine.
type Policy struct {
	// MinStartCharge is the lowest charge (percent) an electric bike may start a ride with.
	MinStartCharge float64 `json:"minStartCharge"`
	// DrainPerUnit is the charge consumed per distance unit ridden.
	DrainPerUnit float64 `json:"drainPerUnit"`
	// ServiceEveryRides flags the bike for service every N completed rides.
	ServiceEveryRides int `json:"serviceEveryRides"`
	// ServiceDistance flags the bike once cumulative distance reaches this value.
	ServiceDistance float64 `json:"serviceDistance"`
	// LowCharge flags an electric bike whose charge drops below it after a ride.
	LowCharge float64 `json:"lowCharge"`
}

func DefaultPolicy() Policy {
	return Policy{
		MinStartCharge:    10,
		DrainPerUnit:      2,
		ServiceEveryRides: 100,
		ServiceDistance:   1000,
		LowCharge:         5,
	}
}

func (p Policy) Validate() error {
	if p.MinStartCharge < 0 || p.MinStartCharge > 100 || p.LowCharge < 0 || p.LowCharge > 100 {
		return fmt.Errorf("%w: charge thresholds must be within 0-100", ErrInvalidArgument)
	}
	if p.DrainPerUnit < 0 || p.ServiceDistance <= 0 || p.ServiceEveryRides <= 0 {
		return fmt.Errorf("%w: service thresholds must be positive", ErrInvalidArgument)
	}
	return nil
}

type Option func(*Bike)

func WithPolicy(p Policy) Option {
	return func(b *Bike) { b.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bike) { b.now = now }
}

// Bike represents a physical bike. All state changes go through its transition
// methods, each of which checks its preconditions before mutating anything.
type Bike struct {
	id  string
	typ Type

	policy Policy
	now    func() time.Time

	mu               sync.Mutex
	status           Status
	charge           float64
	totalRides       int
	totalDistance    float64
	needsMaintenance bool
	stationID        string
	lastUsed         time.Time
	lastMaintenance  time.Time
}

// New creates an Available bike. Electric bikes start fully charged.
func New(id string, t Type, opts ...Option) (*Bike, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: bike id cannot be empty", ErrInvalidArgument)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown bike type %d", ErrInvalidArgument, int(t))
	}

	b := &Bike{
		id:     id,
		typ:    t,
		policy: DefaultPolicy(),
		now:    time.Now,
		status: Available,
		charge: NoCharge,
	}
	for _, opt := range opts {
		opt(b)
	}
	if t == Electric {
		b.charge = 100
	}
	b.lastMaintenance = b.now()
	return b, nil
}

func (b *Bike) ID() string { return b.id }

func (b *Bike) Type() Type { return b.typ }

func (b *Bike) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Charge returns the battery level, or NoCharge for non-electric bikes.
func (b *Bike) Charge() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.charge
}

func (b *Bike) NeedsMaintenance() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.needsMaintenance
}

// StationID returns the station the bike is docked at, or "" when undocked.
func (b *Bike) StationID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stationID
}

// IsAvailable reports whether the bike can be handed to a rider.
func (b *Bike) IsAvailable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status == Available && !b.needsMaintenance
}

func (b *Bike) Reserve() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Available {
		return fmt.Errorf("%w: cannot reserve bike %s in status %s", ErrInvalidTransition, b.id, b.status)
	}
	b.status = Reserved
	return nil
}

// CancelReservation returns a Reserved bike to Available.
func (b *Bike) CancelReservation() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Reserved {
		return fmt.Errorf("%w: bike %s is not reserved", ErrInvalidTransition, b.id)
	}
	b.status = Available
	return nil
}

// StartRide moves the bike to InUse. The bike leaves its dock, so the station
// back-reference is cleared in the same step.
func (b *Bike) StartRide() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Available && b.status != Reserved {
		return fmt.Errorf("%w: cannot start ride on bike %s in status %s", ErrInvalidTransition, b.id, b.status)
	}
	if b.typ == Electric && b.charge < b.policy.MinStartCharge {
		return fmt.Errorf("%w: bike %s at %.1f%%", ErrBatteryTooLow, b.id, b.charge)
	}

	b.status = InUse
	b.stationID = ""
	b.lastUsed = b.now()
	return nil
}

// EndRide finishes a ride of the given distance and leaves the bike Available
// but undocked. Use Return to end a ride directly at a station.
func (b *Bike) EndRide(distance float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endRide(distance)
}

// Return ends the ride and docks the bike at stationID in one step.
func (b *Bike) Return(stationID string, distance float64) error {
	if stationID == "" {
		return fmt.Errorf("%w: station id cannot be empty", ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.endRide(distance); err != nil {
		return err
	}
	b.stationID = stationID
	return nil
}

func (b *Bike) endRide(distance float64) error {
	if b.status != InUse {
		return fmt.Errorf("%w: bike %s is not in use", ErrInvalidTransition, b.id)
	}
	if distance < 0 {
		return fmt.Errorf("%w: distance cannot be negative", ErrInvalidArgument)
	}

	b.status = Available
	b.totalRides++
	b.totalDistance += distance
	if b.typ == Electric {
		b.charge = max(0, b.charge-distance*b.policy.DrainPerUnit)
	}
	b.checkMaintenance()
	return nil
}

// Abort takes back an InUse bike whose ride was cancelled. No ride, distance
// or battery drain is recorded. With a station id the bike is docked there and
// Available; without one it is parked in Maintenance for collection.
func (b *Bike) Abort(stationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != InUse {
		return fmt.Errorf("%w: bike %s is not in use", ErrInvalidTransition, b.id)
	}
	if stationID == "" {
		b.status = Maintenance
		return nil
	}
	b.status = Available
	b.stationID = stationID
	return nil
}

func (b *Bike) checkMaintenance() {
	if b.totalRides%b.policy.ServiceEveryRides == 0 || b.totalDistance >= b.policy.ServiceDistance {
		b.needsMaintenance = true
	}
	if b.typ == Electric && b.charge < b.policy.LowCharge {
		b.needsMaintenance = true
	}
}

func (b *Bike) SendToMaintenance() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == InUse {
		return fmt.Errorf("%w: bike %s is in use", ErrInvalidTransition, b.id)
	}
	b.status = Maintenance
	return nil
}

// CompleteMaintenance returns a serviced bike to Available with a full battery.
func (b *Bike) CompleteMaintenance() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != Maintenance {
		return fmt.Errorf("%w: bike %s is not in maintenance", ErrInvalidTransition, b.id)
	}
	b.status = Available
	b.needsMaintenance = false
	b.lastMaintenance = b.now()
	if b.typ == Electric {
		b.charge = 100
	}
	return nil
}

func (b *Bike) MarkBroken() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status == InUse {
		return fmt.Errorf("%w: bike %s is in use", ErrInvalidTransition, b.id)
	}
	b.status = Broken
	b.needsMaintenance = true
	return nil
}

func (b *Bike) ChargeBattery(amount float64) error {
	if b.typ != Electric {
		return fmt.Errorf("%w: bike %s is not electric", ErrInvalidOperation, b.id)
	}
	if amount < 0 || amount > 100 {
		return fmt.Errorf("%w: charge amount must be between 0 and 100", ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.charge = min(100, b.charge+amount)
	return nil
}

// DockAt records the station the bike is parked at. It is called by the
// station while holding its own lock.
func (b *Bike) DockAt(stationID string) {
	b.mu.Lock()
	b.stationID = stationID
	b.mu.Unlock()
}

func (b *Bike) Undock() {
	b.mu.Lock()
	b.stationID = ""
	b.mu.Unlock()
}

// Snapshot is a point-in-time copy of a bike's state.
type Snapshot struct {
	ID               string    `json:"id"`
	Type             Type      `json:"type"`
	Status           Status    `json:"status"`
	Charge           float64   `json:"charge"`
	TotalRides       int       `json:"totalRides"`
	TotalDistance    float64   `json:"totalDistance"`
	NeedsMaintenance bool      `json:"needsMaintenance"`
	StationID        string    `json:"stationId,omitempty"`
	LastUsed         time.Time `json:"lastUsed,omitzero"`
	LastMaintenance  time.Time `json:"lastMaintenance"`
}

func (b *Bike) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		ID:               b.id,
		Type:             b.typ,
		Status:           b.status,
		Charge:           b.charge,
		TotalRides:       b.totalRides,
		TotalDistance:    b.totalDistance,
		NeedsMaintenance: b.needsMaintenance,
		StationID:        b.stationID,
		LastUsed:         b.lastUsed,
		LastMaintenance:  b.lastMaintenance,
	}
}

// Restore rebuilds a bike from a persisted snapshot. The station back-reference
// is not restored; docking goes through the station.
func Restore(s Snapshot, opts ...Option) (*Bike, error) {
	b, err := New(s.ID, s.Type, opts...)
	if err != nil {
		return nil, err
	}
	if s.Type == Electric && (s.Charge < 0 || s.Charge > 100) {
		return nil, fmt.Errorf("%w: charge %.1f out of range", ErrInvalidArgument, s.Charge)
	}
	if s.Status == InUse {
		return nil, fmt.Errorf("%w: cannot restore bike %s mid-ride", ErrInvalidArgument, s.ID)
	}
	if s.Type == Electric {
		b.charge = s.Charge
	}
	// Reservations live in the station and do not survive a restart.
	b.status = s.Status
	if b.status == Reserved {
		b.status = Available
	}
	b.totalRides = s.TotalRides
	b.totalDistance = s.TotalDistance
	b.needsMaintenance = s.NeedsMaintenance
	b.lastUsed = s.LastUsed
	if !s.LastMaintenance.IsZero() {
		b.lastMaintenance = s.LastMaintenance
	}
	return b, nil
}

func (b *Bike) String() string {
	s := b.Snapshot()
	return fmt.Sprintf("Bike{id=%s type=%s status=%s charge=%.1f rides=%d}", s.ID, s.Type, s.Status, s.Charge, s.TotalRides)
}
