package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/internal/middleware"
	"github.com/semanticallynull/bikeshare-fleet/rental"
	"github.com/semanticallynull/bikeshare-fleet/ride"
)

type startRideRequest struct {
	StationID string `json:"stationId" binding:"required"`
	// BikeID is optional; without it the first rentable bike is picked,
	// preferring BikeType when given.
	BikeID   string `json:"bikeId"`
	BikeType string `json:"bikeType"`
}

func (a *API) startRideHandler(c *gin.Context) {
	rider, ok := riderID(c)
	if !ok {
		return
	}

	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	bikeID := req.BikeID
	if bikeID == "" {
		var preferred []bike.Type
		if req.BikeType != "" {
			t, err := bike.ParseType(req.BikeType)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			preferred = append(preferred, t)
		}
		st, err := a.svc.Fleet().Station(req.StationID)
		if err != nil {
			a.fail(c, err)
			return
		}
		b := st.PickAvailableBike(preferred...)
		if b == nil {
			c.JSON(http.StatusConflict, gin.H{"code": "NO_BIKE_AVAILABLE", "message": "No bike available at this station"})
			return
		}
		bikeID = b.ID()
	}

	r, err := a.svc.StartRental(c.Request.Context(), rider, bikeID, req.StationID)
	if err != nil {
		if step, ok := rental.FailedStep(err); ok {
			middleware.GetLogger(c).InfoContext(c.Request.Context(), "ride not started", "step", step, "error", err)
		}
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

type endRideRequest struct {
	StationID string  `json:"stationId" binding:"required"`
	Distance  float64 `json:"distance"`
}

func (a *API) endRideHandler(c *gin.Context) {
	r, ok := a.ownRide(c)
	if !ok {
		return
	}

	var req endRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	receipt, err := a.svc.EndRental(c.Request.Context(), r.ID, req.StationID, req.Distance)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (a *API) pauseRideHandler(c *gin.Context) {
	r, ok := a.ownRide(c)
	if !ok {
		return
	}
	snap, err := a.svc.PauseRide(c.Request.Context(), r.ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) resumeRideHandler(c *gin.Context) {
	r, ok := a.ownRide(c)
	if !ok {
		return
	}
	snap, err := a.svc.ResumeRide(c.Request.Context(), r.ID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type cancelRideRequest struct {
	Reason string `json:"reason"`
}

func (a *API) cancelRideHandler(c *gin.Context) {
	r, ok := a.ownRide(c)
	if !ok {
		return
	}

	var req cancelRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	receipt, err := a.svc.CancelRental(c.Request.Context(), r.ID, req.Reason)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type rideState struct {
	InProgress bool           `json:"inProgress"`
	Ride       *ride.Snapshot `json:"ride,omitempty"`
}

func (a *API) currentRideHandler(c *gin.Context) {
	rider, ok := riderID(c)
	if !ok {
		return
	}

	r, err := a.svc.CurrentRide(rider)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rideState{InProgress: true, Ride: &r})
	case errors.Is(err, rental.ErrRideNotFound):
		c.JSON(http.StatusOK, rideState{InProgress: false})
	default:
		a.fail(c, err)
	}
}

func (a *API) ridesHandler(c *gin.Context) {
	rider, ok := riderID(c)
	if !ok {
		return
	}
	rides := a.svc.RidesByRider(rider)
	if rides == nil {
		rides = []ride.Snapshot{}
	}
	c.JSON(http.StatusOK, rides)
}

func (a *API) rideHandler(c *gin.Context) {
	r, ok := a.ownRide(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, r)
}

// ownRide loads the ride named in the path. Rides of other riders are
// reported as not found.
func (a *API) ownRide(c *gin.Context) (ride.Snapshot, bool) {
	rider, ok := riderID(c)
	if !ok {
		return ride.Snapshot{}, false
	}
	r, err := a.svc.Ride(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return ride.Snapshot{}, false
	}
	if r.RiderID != rider {
		c.JSON(http.StatusNotFound, gin.H{"code": "RIDE_NOT_FOUND", "message": "Ride not found"})
		return ride.Snapshot{}, false
	}
	return r, true
}

type reserveRequest struct {
	StationID string `json:"stationId" binding:"required"`
	BikeID    string `json:"bikeId" binding:"required"`
}

func (a *API) reserveHandler(c *gin.Context) {
	rider, ok := riderID(c)
	if !ok {
		return
	}

	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := a.svc.ReserveBike(c.Request.Context(), rider, req.StationID, req.BikeID); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bikeId": req.BikeID, "stationId": req.StationID})
}

func (a *API) cancelReservationHandler(c *gin.Context) {
	rider, ok := riderID(c)
	if !ok {
		return
	}
	if err := a.svc.CancelReservation(c.Request.Context(), rider, c.Param("bikeId")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
