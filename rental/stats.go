package rental

import (
	"cmp"
	"slices"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

type BikeStats struct {
	Total            int     `json:"total"`
	Available        int     `json:"available"`
	Reserved         int     `json:"reserved"`
	InUse            int     `json:"inUse"`
	Maintenance      int     `json:"maintenance"`
	Broken           int     `json:"broken"`
	NeedsMaintenance int     `json:"needsMaintenance"`
	AvailabilityRate float64 `json:"availabilityRate"`
	UtilizationRate  float64 `json:"utilizationRate"`
}

type StationStats struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Full          int     `json:"full"`
	Empty         int     `json:"empty"`
	Maintenance   int     `json:"maintenance"`
	Inactive      int     `json:"inactive"`
	WithBikes     int     `json:"withBikes"`
	WithCapacity  int     `json:"withCapacity"`
	Capacity      int     `json:"capacity"`
	Docked        int     `json:"docked"`
	OccupancyRate float64 `json:"occupancyRate"`
}

type FleetStats struct {
	Bikes    BikeStats    `json:"bikes"`
	Stations StationStats `json:"stations"`
}

// FleetStatistics counts bikes and stations by status. Each entity is read
// under its own lock, so the totals are a best-effort view of a busy fleet.
func (s *Service) FleetStatistics() FleetStats {
	var fs FleetStats

	bs := &fs.Bikes
	for _, b := range s.fleet.Bikes() {
		snap := b.Snapshot()
		bs.Total++
		switch snap.Status {
		case bike.Available:
			bs.Available++
		case bike.Reserved:
			bs.Reserved++
		case bike.InUse:
			bs.InUse++
		case bike.Maintenance:
			bs.Maintenance++
		case bike.Broken:
			bs.Broken++
		}
		if snap.NeedsMaintenance {
			bs.NeedsMaintenance++
		}
	}
	if bs.Total > 0 {
		bs.AvailabilityRate = float64(bs.Available) / float64(bs.Total)
		bs.UtilizationRate = float64(bs.InUse) / float64(bs.Total)
	}

	ss := &fs.Stations
	for _, st := range s.fleet.Stations() {
		snap := st.Snapshot()
		ss.Total++
		ss.Capacity += snap.Capacity
		ss.Docked += len(snap.BikeIDs)
		if snap.AvailableBikes > 0 {
			ss.WithBikes++
		}
		if snap.AvailableDocks > 0 {
			ss.WithCapacity++
		}
		switch snap.Status {
		case station.Active:
			ss.Active++
		case station.Full:
			ss.Full++
		case station.Empty:
			ss.Empty++
		case station.Maintenance:
			ss.Maintenance++
		case station.Inactive:
			ss.Inactive++
		}
	}
	if ss.Capacity > 0 {
		ss.OccupancyRate = float64(ss.Docked) / float64(ss.Capacity)
	}
	return fs
}

func inService(st station.Snapshot) bool {
	return st.Status != station.Maintenance && st.Status != station.Inactive
}

// StationsWithAvailableBikes lists open stations with at least one rentable bike.
func (s *Service) StationsWithAvailableBikes() []station.Snapshot {
	var out []station.Snapshot
	for _, st := range s.fleet.Stations() {
		if snap := st.Snapshot(); inService(snap) && snap.AvailableBikes > 0 {
			out = append(out, snap)
		}
	}
	return out
}

// StationsWithAvailableDocks lists stations that could take a returning bike.
func (s *Service) StationsWithAvailableDocks() []station.Snapshot {
	var out []station.Snapshot
	for _, st := range s.fleet.Stations() {
		if st.HasCapacity() {
			out = append(out, st.Snapshot())
		}
	}
	return out
}

// StationsInArea returns the stations within radiusKm of the point, nearest first.
func (s *Service) StationsInArea(lat, lng, radiusKm float64) []station.Snapshot {
	type hit struct {
		snap station.Snapshot
		km   float64
	}
	var hits []hit
	for _, st := range s.fleet.Stations() {
		if km := st.DistanceFrom(lat, lng); km <= radiusKm {
			hits = append(hits, hit{st.Snapshot(), km})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.km, b.km) })

	out := make([]station.Snapshot, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.snap)
	}
	return out
}
