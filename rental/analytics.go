package rental

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/semanticallynull/bikeshare-fleet/ride"
)

// Ride returns the current state of one ride.
func (s *Service) Ride(rideID string) (ride.Snapshot, error) {
	e, err := s.entry(rideID)
	if err != nil {
		return ride.Snapshot{}, err
	}
	return e.ride.Snapshot(), nil
}

// Rides returns every ride in the order it was started.
func (s *Service) Rides() []ride.Snapshot {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.rides[id])
	}
	s.mu.RUnlock()

	out := make([]ride.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ride.Snapshot())
	}
	return out
}

func (s *Service) RidesByRider(riderID string) []ride.Snapshot {
	var out []ride.Snapshot
	for _, r := range s.Rides() {
		if r.RiderID == riderID {
			out = append(out, r)
		}
	}
	return out
}

// CurrentRide returns the rider's ride in progress, if any.
func (s *Service) CurrentRide(riderID string) (ride.Snapshot, error) {
	rider, err := s.fleet.Rider(riderID)
	if err != nil {
		return ride.Snapshot{}, err
	}
	id := rider.CurrentRideID()
	if id == "" {
		return ride.Snapshot{}, fmt.Errorf("%w: %s has no ride in progress", ErrRideNotFound, riderID)
	}
	return s.Ride(id)
}

// FindRidesLongerThan returns completed rides with more than minutes active
// minutes.
func (s *Service) FindRidesLongerThan(minutes int) []ride.Snapshot {
	var out []ride.Snapshot
	for _, r := range s.Rides() {
		if r.Status == ride.Completed && r.ActiveMinutes > minutes {
			out = append(out, r)
		}
	}
	return out
}

// Analytics summarizes all rides. Revenue and durations cover completed rides
// only; cancellation fees are reported separately.
type Analytics struct {
	TotalRides           int     `json:"totalRides"`
	ActiveRides          int     `json:"activeRides"`
	CompletedRides       int     `json:"completedRides"`
	CancelledRides       int     `json:"cancelledRides"`
	TotalRevenue         float64 `json:"totalRevenue"`
	CancellationFees     float64 `json:"cancellationFees"`
	TotalDurationMinutes int     `json:"totalDurationMinutes"`
	AverageRideDuration  float64 `json:"averageRideDuration"`
	AverageRideRevenue   float64 `json:"averageRideRevenue"`
	CompletionRate       float64 `json:"completionRate"`
}

func (s *Service) Analytics() Analytics {
	var a Analytics
	for _, r := range s.Rides() {
		a.TotalRides++
		switch r.Status {
		case ride.Active, ride.Paused:
			a.ActiveRides++
		case ride.Completed:
			a.CompletedRides++
			a.TotalRevenue += r.Fare.Final
			a.TotalDurationMinutes += r.ActiveMinutes
		case ride.Cancelled:
			a.CancelledRides++
			a.CancellationFees += r.Fare.Final
		}
	}

	a.TotalRevenue = roundCents(a.TotalRevenue)
	a.CancellationFees = roundCents(a.CancellationFees)
	if a.CompletedRides > 0 {
		a.AverageRideDuration = float64(a.TotalDurationMinutes) / float64(a.CompletedRides)
		a.AverageRideRevenue = roundCents(a.TotalRevenue / float64(a.CompletedRides))
	}
	if a.TotalRides > 0 {
		a.CompletionRate = float64(a.CompletedRides) / float64(a.TotalRides)
	}
	return a
}

type Route struct {
	StartStationID string `json:"startStationId"`
	EndStationID   string `json:"endStationId"`
	Frequency      int    `json:"frequency"`
}

// PopularRoutes counts completed rides per start and end station pair, most
// frequent first. Ties are ordered by station ids. limit <= 0 returns all.
func (s *Service) PopularRoutes(limit int) []Route {
	type pair struct{ from, to string }
	counts := map[pair]int{}
	for _, r := range s.Rides() {
		if r.Status != ride.Completed {
			continue
		}
		counts[pair{r.StartStationID, r.EndStationID}]++
	}

	routes := make([]Route, 0, len(counts))
	for p, n := range counts {
		routes = append(routes, Route{StartStationID: p.from, EndStationID: p.to, Frequency: n})
	}
	slices.SortFunc(routes, func(a, b Route) int {
		return cmp.Or(
			cmp.Compare(b.Frequency, a.Frequency),
			cmp.Compare(a.StartStationID, b.StartStationID),
			cmp.Compare(a.EndStationID, b.EndStationID),
		)
	})
	if limit > 0 && len(routes) > limit {
		routes = routes[:limit]
	}
	return routes
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
