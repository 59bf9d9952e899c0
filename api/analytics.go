package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-fleet/ride"
)

func (a *API) analyticsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.Analytics())
}

func (a *API) popularRoutesHandler(c *gin.Context) {
	var q struct {
		Limit int `form:"limit" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, a.svc.PopularRoutes(q.Limit))
}

func (a *API) longRidesHandler(c *gin.Context) {
	var q struct {
		Minutes int `form:"minutes,default=60" binding:"min=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	rides := a.svc.FindRidesLongerThan(q.Minutes)
	if rides == nil {
		rides = []ride.Snapshot{}
	}
	c.JSON(http.StatusOK, rides)
}
