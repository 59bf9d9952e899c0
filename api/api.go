// Package api exposes the rental service over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/auth0"
	"github.com/semanticallynull/bikeshare-fleet/internal/middleware"
	"github.com/semanticallynull/bikeshare-fleet/rental"
	"github.com/semanticallynull/bikeshare-fleet/ride"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

type Config struct {
	Logger         *slog.Logger
	Registry       *prometheus.Registry
	TracerProvider trace.TracerProvider
	// Auth authenticates riders; it must store the rider id under
	// middleware.RiderIDKey.
	Auth gin.HandlersChain
	// Profiles is used to open accounts for new riders. Registration is
	// disabled when nil.
	Profiles auth0.Client

	MetricsUsername string
	MetricsPassword string
}

type API struct {
	r        *gin.Engine
	svc      *rental.Service
	profiles auth0.Client
}

func New(svc *rental.Service, cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	a := &API{
		r:        gin.New(),
		svc:      svc,
		profiles: cfg.Profiles,
	}
	a.r.Use(
		gin.Recovery(),
		middleware.Tracing(cfg.TracerProvider),
		middleware.Logging(cfg.Logger),
		middleware.Metrics(cfg.Registry),
	)

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/stations", a.stationsHandler)
	a.r.GET("/stations/:id", a.stationHandler)
	a.r.GET("/stations/:id/bikes", a.stationBikesHandler)
	a.r.GET("/bikes/:id", a.bikeHandler)

	ops := a.r.Group("/")
	if cfg.MetricsUsername != "" {
		ops.Use(gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}))
	}
	ops.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	ops.GET("/analytics", a.analyticsHandler)
	ops.GET("/analytics/routes", a.popularRoutesHandler)
	ops.GET("/analytics/long-rides", a.longRidesHandler)
	ops.GET("/fleet/stats", a.fleetStatsHandler)
	ops.POST("/ops/bikes/:id/maintenance", a.bikeMaintenanceHandler)
	ops.POST("/ops/bikes/:id/broken", a.bikeBrokenHandler)
	ops.POST("/ops/bikes/:id/repair", a.bikeRepairHandler)
	ops.POST("/ops/stations/:id/charge", a.stationChargeHandler)
	ops.POST("/ops/stations/:id/status", a.stationStatusHandler)

	riders := a.r.Group("/")
	riders.Use(cfg.Auth...)
	riders.POST("/me", a.registerHandler)
	riders.GET("/me", a.meHandler)
	riders.POST("/ride/start", a.startRideHandler)
	riders.GET("/ride/current", a.currentRideHandler)
	riders.POST("/ride/:id/end", a.endRideHandler)
	riders.POST("/ride/:id/pause", a.pauseRideHandler)
	riders.POST("/ride/:id/resume", a.resumeRideHandler)
	riders.POST("/ride/:id/cancel", a.cancelRideHandler)
	riders.GET("/rides", a.ridesHandler)
	riders.GET("/rides/:id", a.rideHandler)
	riders.POST("/reservations", a.reserveHandler)
	riders.DELETE("/reservations/:bikeId", a.cancelReservationHandler)

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// errorStatus maps service errors to a status and a stable error code. More
// specific causes are checked before the wrapping rental errors.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rental.ErrRideNotFound):
		return http.StatusNotFound, "RIDE_NOT_FOUND"
	case errors.Is(err, rental.ErrBikeNotFound):
		return http.StatusNotFound, "BIKE_NOT_FOUND"
	case errors.Is(err, rental.ErrStationNotFound):
		return http.StatusNotFound, "STATION_NOT_FOUND"
	case errors.Is(err, rental.ErrRiderNotFound):
		return http.StatusNotFound, "RIDER_NOT_FOUND"
	case errors.Is(err, rental.ErrRiderNotEligible):
		return http.StatusForbidden, "RIDER_NOT_ELIGIBLE"
	case errors.Is(err, rental.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"
	case errors.Is(err, rental.ErrActiveRideExists):
		return http.StatusConflict, "RIDE_IN_PROGRESS"
	case errors.Is(err, bike.ErrBatteryTooLow):
		return http.StatusConflict, "BATTERY_TOO_LOW"
	case errors.Is(err, rental.ErrBikeNotAvailable):
		return http.StatusConflict, "BIKE_NOT_AVAILABLE"
	case errors.Is(err, station.ErrFull):
		return http.StatusConflict, "STATION_FULL"
	case errors.Is(err, station.ErrAlreadyReserved), errors.Is(err, station.ErrNotReserved):
		return http.StatusConflict, "RESERVATION_CONFLICT"
	case errors.Is(err, station.ErrInvalidState):
		return http.StatusConflict, "STATION_UNAVAILABLE"
	case errors.Is(err, station.ErrAlreadyDocked), errors.Is(err, station.ErrNotDocked):
		return http.StatusConflict, "BIKE_NOT_AT_STATION"
	case errors.Is(err, station.ErrNoCharging):
		return http.StatusConflict, "CHARGING_UNAVAILABLE"
	case errors.Is(err, ride.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_RIDE_STATE"
	case errors.Is(err, bike.ErrInvalidTransition), errors.Is(err, bike.ErrInvalidOperation):
		return http.StatusConflict, "INVALID_BIKE_STATE"
	case errors.Is(err, rental.ErrDuplicate):
		return http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, ride.ErrInvalidArgument),
		errors.Is(err, station.ErrInvalidArgument),
		errors.Is(err, bike.ErrInvalidArgument),
		errors.Is(err, customer.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_REQUEST"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (a *API) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		middleware.GetLogger(c).ErrorContext(c.Request.Context(), "request failed", slog.Any("error", err))
		c.JSON(status, gin.H{"code": code, "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"code": code, "message": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": msg})
}

// riderID returns the authenticated rider or writes a 401.
func riderID(c *gin.Context) (string, bool) {
	id, ok := middleware.GetRiderID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
	}
	return id, ok
}
