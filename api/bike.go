package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) bikeHandler(c *gin.Context) {
	b, err := a.svc.Fleet().Bike(c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b.Snapshot())
}
