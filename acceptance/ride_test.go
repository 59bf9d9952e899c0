package acceptance

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fareResponse struct {
	Final float64 `json:"final"`
	Peak  bool    `json:"peak"`
}

type rideResponse struct {
	ID             string       `json:"id"`
	RiderID        string       `json:"riderId"`
	BikeID         string       `json:"bikeId"`
	StartStationID string       `json:"startStationId"`
	EndStationID   string       `json:"endStationId"`
	Status         string       `json:"status"`
	ActiveMinutes  int          `json:"activeMinutes"`
	Fare           fareResponse `json:"fare"`
	Notes          string       `json:"notes"`
}

type receiptResponse struct {
	Ride    rideResponse `json:"ride"`
	Settled bool         `json:"settled"`
	Balance float64      `json:"balance"`
}

type rideStateResponse struct {
	InProgress bool          `json:"inProgress"`
	Ride       *rideResponse `json:"ride"`
}

func TestStartRide_RequiresAuthentication(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, nil)
	requireError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRide_StartAndEnd(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[rideResponse](t, w)
	assert.Equal(t, "RIDE-001", started.ID)
	assert.Equal(t, "active", started.Status)

	w = ts.GET("/ride/current", asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[rideStateResponse](t, w)
	require.True(t, state.InProgress)
	assert.Equal(t, "BIKE-001", state.Ride.BikeID)

	ts.Clock.Advance(20 * time.Minute)

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-C", "distance": 2.5}, asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[receiptResponse](t, w)
	assert.Equal(t, "completed", receipt.Ride.Status)
	assert.Equal(t, "ST-C", receipt.Ride.EndStationID)
	assert.Equal(t, 20, receipt.Ride.ActiveMinutes)
	assert.Equal(t, 3.0, receipt.Ride.Fare.Final)
	assert.True(t, receipt.Settled)
	assert.Equal(t, 17.0, receipt.Balance)

	w = ts.GET("/ride/current", asUser("user-1"))
	assert.False(t, decode[rideStateResponse](t, w).InProgress)

	w = ts.GET("/rides", asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]rideResponse](t, w), 1)

	w = ts.GET("/bikes/BIKE-001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ST-C", decode[bikeResponse](t, w).StationID)
}

func TestStartRide_PicksPreferredType(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeType": "electric"}, asUser("user-2"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "BIKE-002", decode[rideResponse](t, w).BikeID)

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-C"}, asUser("user-1"))
	requireError(t, w, http.StatusConflict, "NO_BIKE_AVAILABLE")

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeType": "tandem"}, asUser("user-1"))
	requireError(t, w, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestStartRide_Conflicts(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, asUser("user-2"))
	requireError(t, w, http.StatusConflict, "BIKE_NOT_AVAILABLE")

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-002"}, asUser("user-1"))
	requireError(t, w, http.StatusConflict, "RIDE_IN_PROGRESS")

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-404"}, asUser("user-2"))
	requireError(t, w, http.StatusNotFound, "BIKE_NOT_FOUND")

	w = ts.POST("/ride/start", map[string]string{"bikeId": "BIKE-002"}, asUser("user-2"))
	requireError(t, w, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestEndRide_Rejections(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code)
	ts.Clock.Advance(10 * time.Minute)

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-C"}, asUser("user-2"))
	requireError(t, w, http.StatusNotFound, "RIDE_NOT_FOUND")

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-B"}, asUser("user-1"))
	requireError(t, w, http.StatusConflict, "STATION_FULL")

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-C", "distance": -3}, asUser("user-1"))
	requireError(t, w, http.StatusBadRequest, "INVALID_REQUEST")

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-C"}, asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.POST("/ride/RIDE-001/end", map[string]any{"stationId": "ST-A"}, asUser("user-1"))
	requireError(t, w, http.StatusConflict, "INVALID_RIDE_STATE")
}

func TestRide_PauseResumeCancel(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-001"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.POST("/ride/RIDE-001/resume", nil, asUser("user-1"))
	requireError(t, w, http.StatusConflict, "INVALID_RIDE_STATE")

	w = ts.POST("/ride/RIDE-001/pause", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paused", decode[rideResponse](t, w).Status)

	ts.Clock.Advance(30 * time.Minute)
	w = ts.POST("/ride/RIDE-001/resume", nil, asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code)
	ts.Clock.Advance(8 * time.Minute)

	w = ts.POST("/ride/RIDE-001/cancel", map[string]string{"reason": "flat tyre"}, asUser("user-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decode[receiptResponse](t, w)
	assert.Equal(t, "cancelled", receipt.Ride.Status)
	assert.Equal(t, "flat tyre", receipt.Ride.Notes)
	assert.Equal(t, 1.0, receipt.Ride.Fare.Final)
	assert.Equal(t, 19.0, receipt.Balance)

	w = ts.GET("/bikes/BIKE-001", nil)
	assert.Equal(t, "ST-A", decode[bikeResponse](t, w).StationID)
}

func TestReservations(t *testing.T) {
	ts := NewTestServer(t)

	w := ts.POST("/reservations", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-002"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-002"}, asUser("user-2"))
	requireError(t, w, http.StatusConflict, "BIKE_NOT_AVAILABLE")

	w = ts.DELETE("/reservations/BIKE-002", asUser("user-2"))
	requireError(t, w, http.StatusConflict, "RESERVATION_CONFLICT")

	w = ts.DELETE("/reservations/BIKE-002", asUser("user-1"))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = ts.POST("/reservations", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-002"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.POST("/ride/start", map[string]string{"stationId": "ST-A", "bikeId": "BIKE-002"}, asUser("user-1"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
