package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

func (a *API) bikeMaintenanceHandler(c *gin.Context) {
	a.serviceBike(c, a.svc.SendBikeToMaintenance)
}

func (a *API) bikeBrokenHandler(c *gin.Context) {
	a.serviceBike(c, a.svc.MarkBikeBroken)
}

func (a *API) serviceBike(c *gin.Context, fn func(context.Context, string) (bike.Snapshot, error)) {
	snap, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type repairRequest struct {
	// StationID is required when the bike is not docked.
	StationID string `json:"stationId"`
}

func (a *API) bikeRepairHandler(c *gin.Context) {
	var req repairRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	snap, err := a.svc.CompleteBikeMaintenance(c.Request.Context(), c.Param("id"), req.StationID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type chargeRequest struct {
	Amount *float64 `json:"amount" binding:"required"`
}

func (a *API) stationChargeHandler(c *gin.Context) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	n, err := a.svc.ChargeStation(c.Request.Context(), c.Param("id"), *req.Amount)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charged": n})
}

type stationStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (a *API) stationStatusHandler(c *gin.Context) {
	var req stationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var status station.Status
	if err := status.Scan(req.Status); err != nil {
		badRequest(c, err.Error())
		return
	}

	snap, err := a.svc.SetStationStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stationResponse{Snapshot: snap})
}

func (a *API) fleetStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.FleetStatistics())
}
