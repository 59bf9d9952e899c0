package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/middleware"
	"github.com/semanticallynull/bikeshare-fleet/rental"
)

// registerHandler opens a Basic account for the authenticated rider using
// their Auth0 profile. Riders with a verified email start Active; the rest
// wait for verification. Registering twice returns the existing account.
func (a *API) registerHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	id, ok := riderID(c)
	if !ok {
		return
	}
	if existing, err := a.svc.Fleet().Rider(id); err == nil {
		c.JSON(http.StatusOK, existing.Snapshot())
		return
	}
	if a.profiles == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"code": "REGISTRATION_DISABLED", "message": "Registration is not available"})
		return
	}

	profile, err := a.profiles.Profile(c.Request.Context(), middleware.AccessToken(c))
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "failed to fetch profile", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "PROFILE_UNAVAILABLE", "message": "Could not load profile"})
		return
	}

	cust, err := customer.New(id, profile.DisplayName(), customer.Basic)
	if err != nil {
		a.fail(c, err)
		return
	}
	if profile.EmailVerified {
		if err := cust.Activate(); err != nil {
			a.fail(c, err)
			return
		}
	}

	if err := a.svc.Fleet().AddRider(cust); err != nil {
		if errors.Is(err, rental.ErrDuplicate) {
			// Lost a race with a concurrent registration.
			if existing, err := a.svc.Fleet().Rider(id); err == nil {
				c.JSON(http.StatusOK, existing.Snapshot())
				return
			}
		}
		a.fail(c, err)
		return
	}

	logger.InfoContext(c.Request.Context(), "rider registered", "rider_id", id, "status", cust.Status().String())
	c.JSON(http.StatusCreated, cust.Snapshot())
}

func (a *API) meHandler(c *gin.Context) {
	id, ok := riderID(c)
	if !ok {
		return
	}
	cust, err := a.svc.Fleet().Rider(id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cust.Snapshot())
}
