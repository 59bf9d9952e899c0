package rental

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

// SendBikeToMaintenance takes a bike out of service. A docked bike stays in
// its dock; any reservation on it is dropped.
func (s *Service) SendBikeToMaintenance(ctx context.Context, bikeID string) (bike.Snapshot, error) {
	return s.serviceBike(ctx, "maintenance", bikeID, (*bike.Bike).SendToMaintenance)
}

func (s *Service) MarkBikeBroken(ctx context.Context, bikeID string) (bike.Snapshot, error) {
	return s.serviceBike(ctx, "broken", bikeID, (*bike.Bike).MarkBroken)
}

func (s *Service) serviceBike(ctx context.Context, op, bikeID string, fn func(*bike.Bike) error) (bike.Snapshot, error) {
	ctx, span := s.startSpan(ctx, "ServiceBike",
		attribute.String("bike.id", bikeID),
		attribute.String("op", op))
	defer span.End()

	b, err := s.fleet.Bike(bikeID)
	if err != nil {
		return bike.Snapshot{}, s.fail(span, op, StepLookup, err)
	}

	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	snap := b.Snapshot()
	if snap.StationID == "" {
		// Not docked and not riding: nothing but ops can move it.
		if snap.Status == bike.InUse {
			return bike.Snapshot{}, s.fail(span, op, StepService, fmt.Errorf("%w: bike %s is in use", bike.ErrInvalidTransition, bikeID))
		}
		if err := fn(b); err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepService, err)
		}
	} else {
		st, err := s.fleet.Station(snap.StationID)
		if err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepLookup, err)
		}
		released, err := st.Service(bikeID, fn)
		if err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepService, err)
		}
		if released {
			s.releaseHold(ctx, bikeID)
		}
	}

	out := b.Snapshot()
	s.logger.InfoContext(ctx, "bike serviced",
		slog.String("bike_id", bikeID),
		slog.String("op", op),
		slog.String("status", out.Status.String()),
		slog.String("station_id", out.StationID))
	return out, nil
}

func (s *Service) releaseHold(ctx context.Context, bikeID string) {
	s.holdMu.Lock()
	holder, ok := s.holds[bikeID]
	delete(s.holds, bikeID)
	s.holdMu.Unlock()

	if ok {
		s.logger.InfoContext(ctx, "reservation dropped by service", slog.String("bike_id", bikeID), slog.String("rider_id", holder))
	}
}

// CompleteBikeMaintenance returns a bike to service. A docked bike is repaired
// in place; an undocked one is docked at stationID, which is how bikes parked
// after a cancelled ride come back into the fleet.
func (s *Service) CompleteBikeMaintenance(ctx context.Context, bikeID, stationID string) (bike.Snapshot, error) {
	const op = "repair"
	ctx, span := s.startSpan(ctx, "CompleteBikeMaintenance",
		attribute.String("bike.id", bikeID),
		attribute.String("station.id", stationID))
	defer span.End()

	b, err := s.fleet.Bike(bikeID)
	if err != nil {
		return bike.Snapshot{}, s.fail(span, op, StepLookup, err)
	}

	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	snap := b.Snapshot()
	switch {
	case snap.StationID != "" && stationID != "" && stationID != snap.StationID:
		return bike.Snapshot{}, s.fail(span, op, StepService,
			fmt.Errorf("%w: %s is docked at %s", station.ErrAlreadyDocked, bikeID, snap.StationID))
	case snap.StationID != "":
		st, err := s.fleet.Station(snap.StationID)
		if err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepLookup, err)
		}
		if _, err := st.Service(bikeID, (*bike.Bike).CompleteMaintenance); err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepService, err)
		}
	case stationID == "":
		return bike.Snapshot{}, s.fail(span, op, StepService,
			fmt.Errorf("%w: bike %s is not docked, a station is required", station.ErrInvalidArgument, bikeID))
	default:
		st, err := s.fleet.Station(stationID)
		if err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepLookup, err)
		}
		if err := st.Receive(b, (*bike.Bike).CompleteMaintenance); err != nil {
			return bike.Snapshot{}, s.fail(span, op, StepArrive, err)
		}
	}

	out := b.Snapshot()
	s.logger.InfoContext(ctx, "bike back in service",
		slog.String("bike_id", bikeID),
		slog.String("station_id", out.StationID))
	return out, nil
}

// ChargeStation tops up the Available electric bikes docked at stationID and
// returns how many were charged.
func (s *Service) ChargeStation(ctx context.Context, stationID string, amount float64) (int, error) {
	const op = "charge"
	ctx, span := s.startSpan(ctx, "ChargeStation", attribute.String("station.id", stationID))
	defer span.End()

	if amount < 0 || amount > 100 {
		return 0, s.fail(span, op, StepService, fmt.Errorf("%w: charge amount must be between 0 and 100", bike.ErrInvalidArgument))
	}
	st, err := s.fleet.Station(stationID)
	if err != nil {
		return 0, s.fail(span, op, StepLookup, err)
	}
	n, err := st.ChargeElectricBikes(amount)
	if err != nil {
		return n, s.fail(span, op, StepService, err)
	}
	s.logger.InfoContext(ctx, "station charged", slog.String("station_id", stationID), slog.Int("bikes", n))
	return n, nil
}

// SetStationStatus applies an administrative status. Active lifts any
// override so the status follows occupancy again; Full and Empty are derived
// and cannot be set.
func (s *Service) SetStationStatus(ctx context.Context, stationID string, status station.Status) (station.Snapshot, error) {
	const op = "station_status"
	ctx, span := s.startSpan(ctx, "SetStationStatus",
		attribute.String("station.id", stationID),
		attribute.String("station.status", status.String()))
	defer span.End()

	st, err := s.fleet.Station(stationID)
	if err != nil {
		return station.Snapshot{}, s.fail(span, op, StepLookup, err)
	}
	switch status {
	case station.Active:
		st.Activate()
	case station.Maintenance:
		st.SetMaintenance()
	case station.Inactive:
		st.Deactivate()
	case station.Full, station.Empty:
		return station.Snapshot{}, s.fail(span, op, StepService,
			fmt.Errorf("%w: %s is derived from occupancy", station.ErrInvalidArgument, status))
	default:
		return station.Snapshot{}, s.fail(span, op, StepService,
			fmt.Errorf("%w: unknown station status %d", station.ErrInvalidArgument, int(status)))
	}

	snap := st.Snapshot()
	s.logger.InfoContext(ctx, "station status changed", slog.String("station_id", stationID), slog.String("status", snap.Status.String()))
	return snap, nil
}
