package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	adapter "github.com/gwatts/gin-adapter"
)

// RiderIDKey is where the authenticated rider id is stored in the gin context.
const RiderIDKey = "rider_id"

// Auth validates Auth0 access tokens issued for audience and stores the token
// subject as the rider id. The returned chain is meant for Group.Use.
func Auth(domain, audience string) (gin.HandlersChain, error) {
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, "https://"), "/")
	if domain == "" || audience == "" {
		return nil, errors.New("auth0 domain and audience are required")
	}

	issuer, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("parse issuer: %w", err)
	}
	provider := jwks.NewCachingProvider(issuer, 5*time.Minute)

	v, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuer.String(),
		[]string{audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("create jwt validator: %w", err)
	}

	mw := jwtmiddleware.New(v.ValidateToken, jwtmiddleware.WithErrorHandler(unauthorized))
	return gin.HandlersChain{adapter.Wrap(mw.CheckJWT), bindRider}, nil
}

func unauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	slog.Debug("rejected token", slog.Any("error", err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
}

// bindRider runs inside the JWT middleware, while the validated claims are
// still on the request context.
func bindRider(c *gin.Context) {
	id, ok := GetAuth0ID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return
	}
	c.Set(RiderIDKey, id)
	c.Next()
}

// GetAuth0ID extracts the user ID (sub claim) from the JWT token in the Gin context
func GetAuth0ID(c *gin.Context) (string, bool) {
	claims, ok := c.Request.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok || claims.RegisteredClaims.Subject == "" {
		GetLogger(c).Debug("no user claims found in context")
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}

// AccessToken returns the raw bearer token of the request.
func AccessToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

// GetRiderID returns the rider id stored by Auth.
func GetRiderID(c *gin.Context) (string, bool) {
	id := c.GetString(RiderIDKey)
	return id, id != ""
}
