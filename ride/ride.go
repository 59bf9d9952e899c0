// Package ride tracks a single rental from start to a terminal state and
// prices it on completion.
package ride

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid ride transition")
)

type Status int

const (
	Active Status = iota
	Paused
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case Completed, Cancelled:
		return true
	case Active, Paused:
	}
	return false
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
		return fmt.Errorf("%w: cannot scan %T into ride status", ErrInvalidArgument, i)
	}
	switch v {
	case "active":
		*s = Active
	case "paused":
		*s = Paused
	case "completed":
		*s = Completed
	case "cancelled":
		*s = Cancelled
	default:
		return fmt.Errorf("%w: unknown ride status %q", ErrInvalidArgument, v)
	}
	return nil
}

type Option func(*Ride)

func WithClock(now func() time.Time) Option {
	return func(r *Ride) { r.now = now }
}

func WithTariff(t Tariff) Option {
	return func(r *Ride) { r.tariff = t }
}

type Ride struct {
	id             string
	riderID        string
	bikeID         string
	startStationID string
	startedAt      time.Time

	tariff Tariff
	now    func() time.Time

	mu           sync.Mutex
	status       Status
	endStationID string
	endedAt      time.Time
	pausedAt     time.Time
	paused       time.Duration
	distance     float64
	bikeType     bike.Type
	membership   customer.Membership
	fare         Fare
	notes        string
}

// New starts an Active ride at the current clock time.
func New(id, riderID, bikeID, startStationID string, opts ...Option) (*Ride, error) {
	fields := []struct{ name, value string }{
		{"ride id", id}, {"rider id", riderID}, {"bike id", bikeID}, {"start station id", startStationID},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return nil, fmt.Errorf("%w: %s cannot be empty", ErrInvalidArgument, f.name)
		}
	}

	r := &Ride{
		id:             strings.TrimSpace(id),
		riderID:        strings.TrimSpace(riderID),
		bikeID:         strings.TrimSpace(bikeID),
		startStationID: strings.TrimSpace(startStationID),
		tariff:         DefaultTariff(),
		now:            time.Now,
		status:         Active,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r, nil
}

func (r *Ride) ID() string             { return r.id }
func (r *Ride) RiderID() string        { return r.riderID }
func (r *Ride) BikeID() string         { return r.bikeID }
func (r *Ride) StartStationID() string { return r.startStationID }
func (r *Ride) StartedAt() time.Time   { return r.startedAt }

func (r *Ride) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Ride) Fare() Fare {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fare
}

func (r *Ride) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != Active {
		return fmt.Errorf("%w: can only pause active rides, %s is %s", ErrInvalidTransition, r.id, r.status)
	}
	r.status = Paused
	r.pausedAt = r.now()
	return nil
}

func (r *Ride) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != Paused {
		return fmt.Errorf("%w: can only resume paused rides, %s is %s", ErrInvalidTransition, r.id, r.status)
	}
	r.foldPause(r.now())
	r.status = Active
	return nil
}

func (r *Ride) foldPause(at time.Time) {
	if r.pausedAt.IsZero() {
		return
	}
	if d := at.Sub(r.pausedAt); d > 0 {
		r.paused += d
	}
	r.pausedAt = time.Time{}
}

// CheckComplete reports whether Complete would accept these arguments in the
// ride's current state, without changing anything.
func (r *Ride) CheckComplete(endStationID string, distance, discount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkComplete(endStationID, distance, discount)
}

func (r *Ride) checkComplete(endStationID string, distance, discount float64) error {
	if r.status != Active && r.status != Paused {
		return fmt.Errorf("%w: can only complete active or paused rides, %s is %s", ErrInvalidTransition, r.id, r.status)
	}
	if strings.TrimSpace(endStationID) == "" {
		return fmt.Errorf("%w: end station id cannot be empty", ErrInvalidArgument)
	}
	if distance < 0 || distance > r.tariff.MaxDistance {
		return fmt.Errorf("%w: distance %.2f outside [0, %.0f]", ErrInvalidArgument, distance, r.tariff.MaxDistance)
	}
	if discount < 0 || discount > 1 {
		return fmt.Errorf("%w: discount must be between 0 and 1", ErrInvalidArgument)
	}
	return nil
}

// Complete ends the ride at endStationID and prices it. A paused ride has its
// open pause folded in first. Cost fields are written only here.
func (r *Ride) Complete(endStationID string, distance float64, bt bike.Type, m customer.Membership, discount float64) error {
	if !bt.Valid() {
		return fmt.Errorf("%w: unknown bike type %d", ErrInvalidArgument, int(bt))
	}
	if !m.Valid() {
		return fmt.Errorf("%w: unknown membership %d", ErrInvalidArgument, int(m))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkComplete(endStationID, distance, discount); err != nil {
		return err
	}

	now := r.now()
	r.foldPause(now)
	r.endedAt = now
	r.endStationID = strings.TrimSpace(endStationID)
	r.distance = distance
	r.bikeType = bt
	r.membership = m
	r.status = Completed
	r.fare = r.tariff.Fare(FareInput{
		Start:         r.startedAt,
		ActiveMinutes: r.activeMinutes(),
		Distance:      distance,
		BikeType:      bt,
		Membership:    m,
		Discount:      discount,
	})
	return nil
}

// Cancel ends the ride without completing it. Rides cancelled after the grace
// period carry the flat cancellation fee as their final amount.
func (r *Ride) Cancel(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return fmt.Errorf("%w: cannot cancel ride %s in status %s", ErrInvalidTransition, r.id, r.status)
	}

	now := r.now()
	r.foldPause(now)
	r.endedAt = now
	r.status = Cancelled
	r.notes = strings.TrimSpace(reason)
	if r.notes == "" {
		r.notes = "Cancelled"
	}
	r.fare = Fare{Final: r.tariff.CancellationFee(r.activeMinutes())}
	return nil
}

// ActiveMinutes is the elapsed time minus paused time, in whole minutes. For
// a ride still in progress it runs up to the current clock.
func (r *Ride) ActiveMinutes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeMinutes()
}

func (r *Ride) activeMinutes() int {
	end := r.endedAt
	if end.IsZero() {
		end = r.now()
	}
	paused := r.paused
	if !r.pausedAt.IsZero() {
		paused += end.Sub(r.pausedAt)
	}
	d := end.Sub(r.startedAt) - paused
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// TotalMinutes includes paused time.
func (r *Ride) TotalMinutes() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.endedAt
	if end.IsZero() {
		end = r.now()
	}
	return max(0, int(end.Sub(r.startedAt)/time.Minute))
}

func (r *Ride) Summary() string {
	s := r.Snapshot()
	if s.Status == Completed {
		return fmt.Sprintf("Ride %s: %.1f km in %d min - %.2f", s.ID, s.Distance, s.ActiveMinutes, s.Fare.Final)
	}
	return fmt.Sprintf("Ride %s: %s (%d min active)", s.ID, s.Status, s.ActiveMinutes)
}

type Snapshot struct {
	ID             string              `json:"id"`
	RiderID        string              `json:"riderId"`
	BikeID         string              `json:"bikeId"`
	StartStationID string              `json:"startStationId"`
	EndStationID   string              `json:"endStationId,omitempty"`
	Status         Status              `json:"status"`
	StartedAt      time.Time           `json:"startedAt"`
	EndedAt        time.Time           `json:"endedAt,omitzero"`
	PausedMinutes  int                 `json:"pausedMinutes"`
	ActiveMinutes  int                 `json:"activeMinutes"`
	Distance       float64             `json:"distance"`
	BikeType       bike.Type           `json:"bikeType"`
	Membership     customer.Membership `json:"membership"`
	Fare           Fare                `json:"fare"`
	Notes          string              `json:"notes,omitempty"`
}

func (r *Ride) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:             r.id,
		RiderID:        r.riderID,
		BikeID:         r.bikeID,
		StartStationID: r.startStationID,
		EndStationID:   r.endStationID,
		Status:         r.status,
		StartedAt:      r.startedAt,
		EndedAt:        r.endedAt,
		PausedMinutes:  int(r.paused / time.Minute),
		ActiveMinutes:  r.activeMinutes(),
		Distance:       r.distance,
		BikeType:       r.bikeType,
		Membership:     r.membership,
		Fare:           r.fare,
		Notes:          r.notes,
	}
}

func (r *Ride) String() string {
	s := r.Snapshot()
	return fmt.Sprintf("Ride{id=%s rider=%s bike=%s status=%s active=%dmin}", s.ID, s.RiderID, s.BikeID, s.Status, s.ActiveMinutes)
}
