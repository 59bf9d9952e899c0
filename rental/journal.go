package rental

import (
	"context"
	"fmt"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/ride"
)

// Journal persists the outcome of a finished ride. It runs after the ride is
// committed in memory; a failure is logged and does not undo the ride.
type Journal interface {
	RideFinished(ctx context.Context, r ride.Snapshot, b bike.Snapshot, c customer.Snapshot) error
}

type nopJournal struct{}

func (nopJournal) RideFinished(context.Context, ride.Snapshot, bike.Snapshot, customer.Snapshot) error {
	return nil
}

// SQLJournal writes finished rides, bike counters and rider balances to
// Postgres through the entity repositories.
type SQLJournal struct {
	rides     *ride.Repository
	bikes     *bike.Repository
	customers *customer.Repository
}

func NewSQLJournal(rr *ride.Repository, br *bike.Repository, cr *customer.Repository) *SQLJournal {
	return &SQLJournal{rides: rr, bikes: br, customers: cr}
}

func (j *SQLJournal) RideFinished(ctx context.Context, r ride.Snapshot, b bike.Snapshot, c customer.Snapshot) error {
	if err := j.rides.SaveRide(ctx, r); err != nil {
		return fmt.Errorf("save ride %s: %w", r.ID, err)
	}
	if err := j.bikes.SaveBike(ctx, b); err != nil {
		return fmt.Errorf("save bike %s: %w", b.ID, err)
	}
	if err := j.customers.UpdateAccount(ctx, c); err != nil {
		return fmt.Errorf("update account %s: %w", c.ID, err)
	}
	return nil
}
