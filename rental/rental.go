package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/notify"
	"github.com/semanticallynull/bikeshare-fleet/ride"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

// Receipt is the outcome of ending or cancelling a rental.
type Receipt struct {
	Ride ride.Snapshot `json:"ride"`
	// Settled is false when the fare could not be authorized or deducted.
	// The ride itself stays finished either way.
	Settled bool    `json:"settled"`
	Balance float64 `json:"balance"`
}

// StartRental hands bikeID at stationID to riderID. The rider's claim, the
// bike leaving the dock and the new ride are committed together; if any part
// is rejected nothing is kept.
func (s *Service) StartRental(ctx context.Context, riderID, bikeID, stationID string) (ride.Snapshot, error) {
	const op = "start"
	ctx, span := s.startSpan(ctx, "StartRental",
		attribute.String("rider.id", riderID),
		attribute.String("bike.id", bikeID),
		attribute.String("station.id", stationID))
	defer span.End()

	rider, err := s.fleet.Rider(riderID)
	if err != nil {
		return ride.Snapshot{}, s.fail(span, op, StepLookup, err)
	}
	st, err := s.fleet.Station(stationID)
	if err != nil {
		return ride.Snapshot{}, s.fail(span, op, StepLookup, err)
	}
	if _, err := s.fleet.Bike(bikeID); err != nil {
		return ride.Snapshot{}, s.fail(span, op, StepLookup, err)
	}

	id := s.newID()
	if err := rider.Claim(id, s.tariff.MinimumRideBalance); err != nil {
		return ride.Snapshot{}, s.fail(span, op, StepRider, riderErr(err))
	}

	r, err := ride.New(id, rider.ID(), bikeID, st.ID(), ride.WithClock(s.now), ride.WithTariff(s.tariff))
	if err != nil {
		rider.Release(id)
		return ride.Snapshot{}, s.fail(span, op, StepRider, err)
	}

	depart := func(b *bike.Bike) error {
		if b.NeedsMaintenance() {
			return fmt.Errorf("%w: %s is due for service", ErrBikeNotAvailable, b.ID())
		}
		if err := b.StartRide(); err != nil {
			return err
		}
		s.register(r)
		return nil
	}

	s.holdMu.Lock()
	holder, held := s.holds[bikeID]
	s.holdMu.Unlock()

	if held && holder == rider.ID() {
		_, err = st.CheckoutReserved(bikeID, depart)
		if err == nil {
			s.holdMu.Lock()
			delete(s.holds, bikeID)
			s.holdMu.Unlock()
		}
	} else {
		_, err = st.Checkout(bikeID, depart)
	}
	if err != nil {
		rider.Release(id)
		return ride.Snapshot{}, s.fail(span, op, StepDepart, departErr(err))
	}
	s.dropHolds(ctx, rider.ID())

	snap := r.Snapshot()
	span.SetAttributes(attribute.String("ride.id", id))
	s.metrics.rideStarted()
	s.publish(notify.Event{Kind: notify.RideStarted, RideID: id, RiderID: rider.ID(), BikeID: bikeID, StationID: st.ID(), At: snap.StartedAt})
	s.logger.InfoContext(ctx, "ride started",
		slog.String("ride_id", id),
		slog.String("rider_id", rider.ID()),
		slog.String("bike_id", bikeID),
		slog.String("station_id", st.ID()))
	return snap, nil
}

// EndRental docks the ride's bike at stationID and prices the ride. The
// destination's capacity and the ride's arguments are checked before the bike
// or ride change, under the destination's lock.
func (s *Service) EndRental(ctx context.Context, rideID, stationID string, distance float64) (Receipt, error) {
	const op = "end"
	ctx, span := s.startSpan(ctx, "EndRental",
		attribute.String("ride.id", rideID),
		attribute.String("station.id", stationID),
		attribute.Float64("ride.distance", distance))
	defer span.End()

	e, err := s.entry(rideID)
	if err != nil {
		return Receipt{}, s.fail(span, op, StepLookup, err)
	}

	r, rider, b, err := s.complete(e, stationID, distance)
	if err != nil {
		step := StepArrive
		if errors.Is(err, ErrRiderNotFound) || errors.Is(err, ErrBikeNotFound) || errors.Is(err, ErrStationNotFound) {
			step = StepLookup
		}
		return Receipt{}, s.fail(span, op, step, err)
	}

	if err := rider.Finish(r.ID); err != nil {
		s.logger.WarnContext(ctx, "rider was not holding the ride", slog.String("ride_id", r.ID), slog.Any("error", err))
	}
	settled := s.settle(ctx, rider, r.ID, r.Fare.Final)
	receipt := Receipt{Ride: r, Settled: settled, Balance: rider.Balance()}

	s.publish(notify.Event{Kind: notify.RideCompleted, RideID: r.ID, RiderID: r.RiderID, BikeID: r.BikeID, StationID: r.EndStationID, Amount: r.Fare.Final, At: r.EndedAt})
	s.warnLowBalance(rider)
	if err := s.journal.RideFinished(ctx, r, b.Snapshot(), rider.Snapshot()); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist ride", slog.String("ride_id", r.ID), slog.Any("error", err))
	}
	s.metrics.rideFinished(ride.Completed.String(), r.Fare.Final)

	span.SetAttributes(attribute.Float64("ride.fare", r.Fare.Final), attribute.Bool("ride.settled", settled))
	s.logger.InfoContext(ctx, "ride completed",
		slog.String("ride_id", r.ID),
		slog.String("station_id", r.EndStationID),
		slog.Int("active_minutes", r.ActiveMinutes),
		slog.Float64("fare", r.Fare.Final),
		slog.Bool("settled", settled))
	return receipt, nil
}

func (s *Service) complete(e *entry, stationID string, distance float64) (ride.Snapshot, *customer.Customer, *bike.Bike, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.ride
	if st := r.Status(); st.Terminal() {
		return ride.Snapshot{}, nil, nil, fmt.Errorf("%w: ride %s is %s", ride.ErrInvalidTransition, r.ID(), st)
	}
	rider, err := s.fleet.Rider(r.RiderID())
	if err != nil {
		return ride.Snapshot{}, nil, nil, err
	}
	b, err := s.fleet.Bike(r.BikeID())
	if err != nil {
		return ride.Snapshot{}, nil, nil, err
	}
	dest, err := s.fleet.Station(stationID)
	if err != nil {
		return ride.Snapshot{}, nil, nil, err
	}

	discount := rider.Discount()
	err = dest.Checkin(b, func(sid string) error {
		if err := r.CheckComplete(sid, distance, discount); err != nil {
			return err
		}
		if err := b.Return(sid, distance); err != nil {
			return err
		}
		// Arguments were checked above and the entry lock keeps the ride
		// Active or Paused, so this cannot fail once the bike is back.
		return r.Complete(sid, distance, b.Type(), rider.Membership(), discount)
	})
	if err != nil {
		return ride.Snapshot{}, nil, nil, err
	}
	return r.Snapshot(), rider, b, nil
}

// CancelRental ends a ride without completing it. The bike goes back to the
// start station without counting a ride; if that station cannot take it the
// bike is parked undocked in Maintenance until operations re-dock it with
// CompleteBikeMaintenance.
func (s *Service) CancelRental(ctx context.Context, rideID, reason string) (Receipt, error) {
	const op = "cancel"
	ctx, span := s.startSpan(ctx, "CancelRental", attribute.String("ride.id", rideID))
	defer span.End()

	e, err := s.entry(rideID)
	if err != nil {
		return Receipt{}, s.fail(span, op, StepLookup, err)
	}

	r, rider, b, docked, err := s.cancel(e, reason)
	if err != nil {
		return Receipt{}, s.fail(span, op, StepCancel, err)
	}
	if !docked {
		s.logger.WarnContext(ctx, "start station cannot take bike back, parked for collection",
			slog.String("bike_id", r.BikeID),
			slog.String("station_id", r.StartStationID))
	}

	rider.Release(r.ID)
	settled := s.settle(ctx, rider, r.ID, r.Fare.Final)
	receipt := Receipt{Ride: r, Settled: settled, Balance: rider.Balance()}

	s.publish(notify.Event{Kind: notify.RideCancelled, RideID: r.ID, RiderID: r.RiderID, BikeID: r.BikeID, Amount: r.Fare.Final, At: r.EndedAt})
	if err := s.journal.RideFinished(ctx, r, b.Snapshot(), rider.Snapshot()); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist ride", slog.String("ride_id", r.ID), slog.Any("error", err))
	}
	s.metrics.rideFinished(ride.Cancelled.String(), r.Fare.Final)

	s.logger.InfoContext(ctx, "ride cancelled",
		slog.String("ride_id", r.ID),
		slog.String("reason", r.Notes),
		slog.Float64("fee", r.Fare.Final))
	return receipt, nil
}

func (s *Service) cancel(e *entry, reason string) (ride.Snapshot, *customer.Customer, *bike.Bike, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.ride
	if st := r.Status(); st.Terminal() {
		return ride.Snapshot{}, nil, nil, false, fmt.Errorf("%w: ride %s is %s", ride.ErrInvalidTransition, r.ID(), st)
	}
	rider, err := s.fleet.Rider(r.RiderID())
	if err != nil {
		return ride.Snapshot{}, nil, nil, false, err
	}
	b, err := s.fleet.Bike(r.BikeID())
	if err != nil {
		return ride.Snapshot{}, nil, nil, false, err
	}
	home, err := s.fleet.Station(r.StartStationID())
	if err != nil {
		return ride.Snapshot{}, nil, nil, false, err
	}

	err = home.Checkin(b, func(sid string) error {
		if err := b.Abort(sid); err != nil {
			return err
		}
		return r.Cancel(reason)
	})
	switch {
	case err == nil:
		return r.Snapshot(), rider, b, true, nil
	case errors.Is(err, station.ErrFull), errors.Is(err, station.ErrInvalidState):
		if err := b.Abort(""); err != nil {
			return ride.Snapshot{}, nil, nil, false, err
		}
		if err := r.Cancel(reason); err != nil {
			return ride.Snapshot{}, nil, nil, false, err
		}
		return r.Snapshot(), rider, b, false, nil
	default:
		return ride.Snapshot{}, nil, nil, false, err
	}
}

func (s *Service) PauseRide(ctx context.Context, rideID string) (ride.Snapshot, error) {
	return s.transition(ctx, "pause", rideID, (*ride.Ride).Pause)
}

func (s *Service) ResumeRide(ctx context.Context, rideID string) (ride.Snapshot, error) {
	return s.transition(ctx, "resume", rideID, (*ride.Ride).Resume)
}

func (s *Service) transition(ctx context.Context, op, rideID string, fn func(*ride.Ride) error) (ride.Snapshot, error) {
	_, span := s.startSpan(ctx, op, attribute.String("ride.id", rideID))
	defer span.End()

	e, err := s.entry(rideID)
	if err != nil {
		return ride.Snapshot{}, s.fail(span, op, StepLookup, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.ride); err != nil {
		return ride.Snapshot{}, s.fail(span, op, op, err)
	}
	return e.ride.Snapshot(), nil
}

// ReserveBike holds a docked bike for riderID until they start a ride on it
// or cancel. A rider holds at most one bike.
func (s *Service) ReserveBike(ctx context.Context, riderID, stationID, bikeID string) error {
	const op = "reserve"
	_, span := s.startSpan(ctx, "ReserveBike",
		attribute.String("rider.id", riderID),
		attribute.String("bike.id", bikeID))
	defer span.End()

	rider, err := s.fleet.Rider(riderID)
	if err != nil {
		return s.fail(span, op, StepLookup, err)
	}
	st, err := s.fleet.Station(stationID)
	if err != nil {
		return s.fail(span, op, StepLookup, err)
	}
	if rider.Status() != customer.Active {
		return s.fail(span, op, StepRider, fmt.Errorf("%w: account %s is %s", ErrRiderNotEligible, riderID, rider.Status()))
	}
	if cur := rider.CurrentRideID(); cur != "" {
		return s.fail(span, op, StepRider, fmt.Errorf("%w: %s", ErrActiveRideExists, cur))
	}

	s.holdMu.Lock()
	defer s.holdMu.Unlock()

	for bid, holder := range s.holds {
		if holder == riderID {
			return s.fail(span, op, StepRider, fmt.Errorf("%w: %s already holds %s", station.ErrAlreadyReserved, riderID, bid))
		}
	}
	if err := st.ReserveBike(bikeID); err != nil {
		return s.fail(span, op, StepReserve, err)
	}
	s.holds[bikeID] = riderID
	return nil
}

func (s *Service) CancelReservation(ctx context.Context, riderID, bikeID string) error {
	const op = "unreserve"
	_, span := s.startSpan(ctx, "CancelReservation",
		attribute.String("rider.id", riderID),
		attribute.String("bike.id", bikeID))
	defer span.End()

	b, err := s.fleet.Bike(bikeID)
	if err != nil {
		return s.fail(span, op, StepLookup, err)
	}

	s.holdMu.Lock()
	defer s.holdMu.Unlock()

	if s.holds[bikeID] != riderID {
		return s.fail(span, op, StepReserve, fmt.Errorf("%w: %s holds no reservation on %s", station.ErrNotReserved, riderID, bikeID))
	}
	st, err := s.fleet.Station(b.StationID())
	if err != nil {
		return s.fail(span, op, StepLookup, err)
	}
	if err := st.CancelReservation(bikeID); err != nil {
		return s.fail(span, op, StepReserve, err)
	}
	delete(s.holds, bikeID)
	return nil
}

// dropHolds releases any bike riderID still holds once they are riding
// something else.
func (s *Service) dropHolds(ctx context.Context, riderID string) {
	s.holdMu.Lock()
	defer s.holdMu.Unlock()

	for bid, holder := range s.holds {
		if holder != riderID {
			continue
		}
		b, err := s.fleet.Bike(bid)
		if err == nil {
			var st *station.Station
			if st, err = s.fleet.Station(b.StationID()); err == nil {
				err = st.CancelReservation(bid)
			}
		}
		if err != nil && !errors.Is(err, station.ErrNotReserved) {
			s.logger.WarnContext(ctx, "failed to release hold", slog.String("bike_id", bid), slog.String("rider_id", riderID), slog.Any("error", err))
		}
		delete(s.holds, bid)
	}
}
