// Package payment authorizes ride fares against an external payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

var (
	ErrDeclined   = errors.New("payment declined")
	ErrNoCustomer = errors.New("no payment customer for rider")
	ErrNoMethod   = errors.New("no default payment method")
)

// Authorizer approves charging a rider for a finished ride.
type Authorizer interface {
	Authorize(ctx context.Context, riderID string, amount float64) error
}

type AuthorizerFunc func(ctx context.Context, riderID string, amount float64) error

func (f AuthorizerFunc) Authorize(ctx context.Context, riderID string, amount float64) error {
	return f(ctx, riderID, amount)
}

// Approve accepts every charge. It is used when no provider is configured and
// balances are settled from the rider's prepaid funds alone.
var Approve = AuthorizerFunc(func(context.Context, string, float64) error { return nil })

// Cents converts a fare to the smallest currency unit.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Charge is one recorded authorization attempt.
type Charge struct {
	RiderID string
	Amount  float64
}

// Fake records charges and fails for riders listed in Decline.
type Fake struct {
	mu      sync.Mutex
	charges []Charge
	Decline map[string]bool
}

func NewFake() *Fake {
	return &Fake{Decline: map[string]bool{}}
}

func (f *Fake) Authorize(_ context.Context, riderID string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.charges = append(f.charges, Charge{RiderID: riderID, Amount: amount})
	if f.Decline[riderID] {
		return fmt.Errorf("%w: rider %s", ErrDeclined, riderID)
	}
	return nil
}

func (f *Fake) Charges() []Charge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Charge(nil), f.charges...)
}
