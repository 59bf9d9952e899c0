package rental

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/config"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

type StationSource interface {
	GetStations(ctx context.Context) ([]station.Record, error)
}

type BikeSource interface {
	GetBikes(ctx context.Context) ([]bike.Record, error)
}

type RiderSource interface {
	GetCustomers(ctx context.Context) ([]customer.Record, error)
}

// LoadFleet rebuilds the fleet from the database. Bikes that are out of
// service are registered but not docked, since a dock only accepts available
// bikes.
func LoadFleet(ctx context.Context, ss StationSource, bs BikeSource, rs RiderSource, policy bike.Policy, logger *slog.Logger) (*Fleet, error) {
	f := NewFleet()

	stations, err := ss.GetStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	for _, rec := range stations {
		s, err := rec.Station()
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", rec.ID, err)
		}
		if err := f.AddStation(s); err != nil {
			return nil, err
		}
	}

	bikes, err := bs.GetBikes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bikes: %w", err)
	}
	for _, rec := range bikes {
		snap := rec.Snapshot()
		b, err := bike.Restore(snap, bike.WithPolicy(policy))
		if err != nil {
			return nil, fmt.Errorf("bike %s: %w", rec.ID, err)
		}
		dock := snap.StationID
		if dock != "" && b.Status() != bike.Available {
			logger.Warn("bike out of service, not docking",
				slog.String("bike_id", b.ID()),
				slog.String("station_id", dock),
				slog.String("status", b.Status().String()))
			dock = ""
		}
		if err := f.AddBike(b, dock); err != nil {
			return nil, fmt.Errorf("bike %s: %w", rec.ID, err)
		}
	}

	riders, err := rs.GetCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load riders: %w", err)
	}
	for _, rec := range riders {
		c, err := customer.Restore(rec.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("rider %s: %w", rec.ID, err)
		}
		if err := f.AddRider(c); err != nil {
			return nil, err
		}
	}

	logger.Info("fleet loaded",
		slog.Int("stations", len(stations)),
		slog.Int("bikes", len(bikes)),
		slog.Int("riders", len(riders)))
	return f, nil
}

// SeedFleet builds a fleet from the seed lists of a config file. Seeded
// riders start active unless marked pending.
func SeedFleet(cfg *config.Config) (*Fleet, error) {
	f := NewFleet()
	policy := cfg.Policy()

	for _, seed := range cfg.Stations {
		s, err := station.New(seed.ID, seed.Name, seed.Address, seed.Latitude, seed.Longitude, seed.Capacity)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", seed.ID, err)
		}
		if seed.ChargingRate > 0 {
			if err := s.EnableCharging(seed.ChargingRate); err != nil {
				return nil, fmt.Errorf("station %s: %w", seed.ID, err)
			}
		}
		if err := f.AddStation(s); err != nil {
			return nil, err
		}
	}

	for _, seed := range cfg.Bikes {
		t, err := bike.ParseType(seed.Type)
		if err != nil {
			return nil, fmt.Errorf("bike %s: %w", seed.ID, err)
		}
		b, err := bike.New(seed.ID, t, bike.WithPolicy(policy))
		if err != nil {
			return nil, fmt.Errorf("bike %s: %w", seed.ID, err)
		}
		if err := f.AddBike(b, seed.Station); err != nil {
			return nil, fmt.Errorf("bike %s: %w", seed.ID, err)
		}
	}

	for _, seed := range cfg.Riders {
		m := customer.Basic
		if seed.Membership != "" {
			var err error
			if m, err = customer.ParseMembership(seed.Membership); err != nil {
				return nil, fmt.Errorf("rider %s: %w", seed.ID, err)
			}
		}
		status := customer.Active
		if seed.Pending {
			status = customer.PendingVerification
		}
		c, err := customer.Restore(customer.Snapshot{
			ID:         seed.ID,
			Name:       seed.Name,
			StripeID:   seed.StripeID,
			Status:     status,
			Membership: m,
			Balance:    seed.Balance,
		})
		if err != nil {
			return nil, fmt.Errorf("rider %s: %w", seed.ID, err)
		}
		if err := f.AddRider(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}
