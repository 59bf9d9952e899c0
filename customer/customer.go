// Package customer models the rider account that the rental workflow draws on:
// eligibility, membership tier, balance and the one-active-ride rule.
package customer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidTransition   = errors.New("invalid account transition")
	ErrNotEligible         = errors.New("rider not eligible to ride")
	ErrActiveRide          = errors.New("rider already has an active ride")
	ErrNoActiveRide        = errors.New("rider has no active ride")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

const (
	MaxTopUp    = 1000.0
	MaxDiscount = 0.30
)

type Membership int

const (
	Basic Membership = iota
	Premium
	Student
	Corporate
	VIP
)

func (m Membership) String() string {
	switch m {
	case Basic:
		return "basic"
	case Premium:
		return "premium"
	case Student:
		return "student"
	case Corporate:
		return "corporate"
	case VIP:
		return "vip"
	}
	return fmt.Sprintf("membership(%d)", int(m))
}

func (m Membership) Valid() bool {
	switch m {
	case Basic, Premium, Student, Corporate, VIP:
		return true
	}
	return false
}

// Discount is the fare discount granted by the tier alone.
func (m Membership) Discount() float64 {
	switch m {
	case Basic:
		return 0
	case Premium:
		return 0.15
	case Student:
		return 0.20
	case Corporate:
		return 0.10
	case VIP:
		return 0.25
	}
	return 0
}

func (m Membership) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Membership) UnmarshalText(text []byte) error {
	v, err := ParseMembership(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m *Membership) Scan(i any) error {
	switch x := i.(type) {
	case string:
		return m.UnmarshalText([]byte(x))
	case []byte:
		return m.UnmarshalText(x)
	}
	return fmt.Errorf("%w: cannot scan %T into membership", ErrInvalidArgument, i)
}

func ParseMembership(s string) (Membership, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return Basic, nil
	case "premium":
		return Premium, nil
	case "student":
		return Student, nil
	case "corporate":
		return Corporate, nil
	case "vip":
		return VIP, nil
	}
	return 0, fmt.Errorf("%w: unknown membership %q", ErrInvalidArgument, s)
}

type Status int

const (
	PendingVerification Status = iota
	Active
	Suspended
	Inactive
)

func (s Status) String() string {
	switch s {
	case PendingVerification:
		return "pending_verification"
	case Active:
		return "active"
	case Suspended:
		return "suspended"
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
		return fmt.Errorf("%w: cannot scan %T into customer status", ErrInvalidArgument, i)
	}
	switch v {
	case "pending_verification":
		*s = PendingVerification
	case "active":
		*s = Active
	case "suspended":
		*s = Suspended
	case "inactive":
		*s = Inactive
	default:
		return fmt.Errorf("%w: unknown customer status %q", ErrInvalidArgument, v)
	}
	return nil
}

type Customer struct {
	id       string
	name     string
	stripeID string

	mu            sync.Mutex
	status        Status
	membership    Membership
	balance       float64
	totalRides    int
	totalSpent    float64
	currentRideID string
}

// New creates an account awaiting verification with a zero balance.
func New(id, name string, membership Membership) (*Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: customer id cannot be empty", ErrInvalidArgument)
	}
	if !membership.Valid() {
		return nil, fmt.Errorf("%w: unknown membership %d", ErrInvalidArgument, int(membership))
	}
	return &Customer{
		id:         id,
		name:       strings.TrimSpace(name),
		status:     PendingVerification,
		membership: membership,
	}, nil
}

func (c *Customer) ID() string { return c.id }

func (c *Customer) Name() string { return c.name }

// StripeID is the payment-provider customer reference, empty if none is linked.
func (c *Customer) StripeID() string { return c.stripeID }

func (c *Customer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Customer) Membership() Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membership
}

func (c *Customer) Balance() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance
}

func (c *Customer) CurrentRideID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRideID
}

func (c *Customer) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case PendingVerification, Suspended:
		c.status = Active
		return nil
	case Active, Inactive:
	}
	return fmt.Errorf("%w: cannot activate %s account %s", ErrInvalidTransition, c.status, c.id)
}

func (c *Customer) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Active {
		return fmt.Errorf("%w: cannot suspend %s account %s", ErrInvalidTransition, c.status, c.id)
	}
	c.status = Suspended
	return nil
}

func (c *Customer) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRideID != "" {
		return fmt.Errorf("%w: %s has ride %s in progress", ErrActiveRide, c.id, c.currentRideID)
	}
	c.status = Inactive
	return nil
}

func (c *Customer) UpdateMembership(m Membership) error {
	if !m.Valid() {
		return fmt.Errorf("%w: unknown membership %d", ErrInvalidArgument, int(m))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Active {
		return fmt.Errorf("%w: account %s is %s", ErrNotEligible, c.id, c.status)
	}
	c.membership = m
	return nil
}

func (c *Customer) AddFunds(amount float64) error {
	if amount <= 0 || amount > MaxTopUp {
		return fmt.Errorf("%w: top-up must be within (0, %.2f]", ErrInvalidArgument, MaxTopUp)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance += amount
	return nil
}

func (c *Customer) Deduct(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount cannot be negative", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.balance < amount {
		return fmt.Errorf("%w: %s has %.2f, needs %.2f", ErrInsufficientBalance, c.id, c.balance, amount)
	}
	c.balance -= amount
	c.totalSpent += amount
	return nil
}

// Claim reserves the rider's single active-ride slot for rideID. The rider
// must be Active, have no ride in progress and hold at least minBalance.
func (c *Customer) Claim(rideID string, minBalance float64) error {
	if rideID == "" {
		return fmt.Errorf("%w: ride id cannot be empty", ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Active {
		return fmt.Errorf("%w: account %s is %s", ErrNotEligible, c.id, c.status)
	}
	if c.currentRideID != "" {
		return fmt.Errorf("%w: %s", ErrActiveRide, c.currentRideID)
	}
	if c.balance < minBalance {
		return fmt.Errorf("%w: %.2f below minimum %.2f", ErrInsufficientBalance, c.balance, minBalance)
	}
	c.currentRideID = rideID
	return nil
}

// Release gives back a claimed slot without counting a ride. It is a no-op
// if rideID is not the rider's current ride.
func (c *Customer) Release(rideID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentRideID == rideID {
		c.currentRideID = ""
	}
}

// Finish closes the active ride and counts it towards loyalty.
func (c *Customer) Finish(rideID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentRideID == "" || c.currentRideID != rideID {
		return fmt.Errorf("%w: %s", ErrNoActiveRide, rideID)
	}
	c.currentRideID = ""
	c.totalRides++
	return nil
}

// Discount combines the membership discount with the loyalty bonus, capped
// at MaxDiscount.
func (c *Customer) Discount() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.membership.Discount()
	switch {
	case c.totalRides > 100:
		d += 0.05
	case c.totalRides > 50:
		d += 0.03
	}
	return min(d, MaxDiscount)
}

type Snapshot struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	StripeID      string     `json:"-"`
	Status        Status     `json:"status"`
	Membership    Membership `json:"membership"`
	Balance       float64    `json:"balance"`
	TotalRides    int        `json:"totalRides"`
	TotalSpent    float64    `json:"totalSpent"`
	CurrentRideID string     `json:"currentRideId,omitempty"`
}

func (c *Customer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ID:            c.id,
		Name:          c.name,
		StripeID:      c.stripeID,
		Status:        c.status,
		Membership:    c.membership,
		Balance:       c.balance,
		TotalRides:    c.totalRides,
		TotalSpent:    c.totalSpent,
		CurrentRideID: c.currentRideID,
	}
}

// Restore rebuilds an account from storage. Rides in progress are not
// restored.
func Restore(s Snapshot) (*Customer, error) {
	c, err := New(s.ID, s.Name, s.Membership)
	if err != nil {
		return nil, err
	}
	if s.Balance < 0 || s.TotalRides < 0 || s.TotalSpent < 0 {
		return nil, fmt.Errorf("%w: negative counters for %s", ErrInvalidArgument, s.ID)
	}
	c.stripeID = s.StripeID
	c.status = s.Status
	c.balance = s.Balance
	c.totalRides = s.TotalRides
	c.totalSpent = s.TotalSpent
	return c, nil
}
