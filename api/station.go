package api

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

type stationResponse struct {
	station.Snapshot
	// DistanceKm is set when the request carries lat/lng.
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

// stationsHandler lists stations, nearest first when lat and lng are given.
// radiusKm limits the list to an area; with=bikes or with=docks keeps only
// stations that have a rentable bike or a free dock.
func (a *API) stationsHandler(c *gin.Context) {
	var q struct {
		Lat      *float64 `form:"lat" binding:"omitempty,min=-90,max=90"`
		Lng      *float64 `form:"lng" binding:"omitempty,min=-180,max=180"`
		RadiusKm *float64 `form:"radiusKm" binding:"omitempty,gt=0"`
		With     string   `form:"with" binding:"omitempty,oneof=bikes docks"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	if (q.Lat == nil) != (q.Lng == nil) {
		badRequest(c, "lat and lng must be given together")
		return
	}
	if q.RadiusKm != nil && q.Lat == nil {
		badRequest(c, "radiusKm needs lat and lng")
		return
	}

	var snaps []station.Snapshot
	switch {
	case q.RadiusKm != nil:
		snaps = a.svc.StationsInArea(*q.Lat, *q.Lng, *q.RadiusKm)
	case q.With == "bikes":
		snaps = a.svc.StationsWithAvailableBikes()
	case q.With == "docks":
		snaps = a.svc.StationsWithAvailableDocks()
	default:
		for _, s := range a.svc.Fleet().Stations() {
			snaps = append(snaps, s.Snapshot())
		}
	}
	if q.RadiusKm != nil && q.With != "" {
		keep := map[string]bool{}
		filter := a.svc.StationsWithAvailableBikes
		if q.With == "docks" {
			filter = a.svc.StationsWithAvailableDocks
		}
		for _, s := range filter() {
			keep[s.ID] = true
		}
		snaps = slices.DeleteFunc(snaps, func(s station.Snapshot) bool { return !keep[s.ID] })
	}

	resp := make([]stationResponse, 0, len(snaps))
	for _, s := range snaps {
		r := stationResponse{Snapshot: s}
		if q.Lat != nil {
			d := station.Distance(s.Latitude, s.Longitude, *q.Lat, *q.Lng)
			r.DistanceKm = &d
		}
		resp = append(resp, r)
	}
	if q.Lat != nil {
		slices.SortStableFunc(resp, func(x, y stationResponse) int {
			return cmp.Compare(*x.DistanceKm, *y.DistanceKm)
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) stationHandler(c *gin.Context) {
	s, err := a.svc.Fleet().Station(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stationResponse{Snapshot: s.Snapshot()})
}

// stationBikesHandler lists rentable bikes, optionally of one type.
func (a *API) stationBikesHandler(c *gin.Context) {
	s, err := a.svc.Fleet().Station(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}

	var bikes []*bike.Bike
	if typ := c.Query("type"); typ != "" {
		t, err := bike.ParseType(typ)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		bikes = s.AvailableBikesByType(t)
	} else {
		for _, b := range s.Bikes() {
			if b.IsAvailable() {
				bikes = append(bikes, b)
			}
		}
	}

	resp := make([]bike.Snapshot, 0, len(bikes))
	for _, b := range bikes {
		resp = append(resp, b.Snapshot())
	}
	c.JSON(http.StatusOK, resp)
}
