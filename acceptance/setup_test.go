package acceptance

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/bikeshare-fleet/api"
	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/auth0"
	"github.com/semanticallynull/bikeshare-fleet/internal/middleware"
	"github.com/semanticallynull/bikeshare-fleet/internal/payment"
	"github.com/semanticallynull/bikeshare-fleet/rental"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

const (
	opsUser     = "ops"
	opsPassword = "secret"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type TestServer struct {
	Router   *gin.Engine
	Service  *rental.Service
	Fleet    *rental.Fleet
	Clock    *clock
	Payments *payment.Fake
	Profiles *auth0.FakeClient
}

// NewTestServer serves an in-memory fleet:
//
//	ST-A  capacity 4: BIKE-001 (standard), BIKE-002 (electric)
//	ST-B  capacity 1: BIKE-003 (standard), full
//	ST-C  capacity 3: empty
//
// user-1 is a Basic rider and user-2 a Premium rider, both Active with 20.00.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fleet := rental.NewFleet()
	for _, s := range []struct {
		id       string
		lat, lng float64
		capacity int
	}{
		{"ST-A", 53.349, -6.260, 4},
		{"ST-B", 53.339, -6.250, 1},
		{"ST-C", 53.360, -6.280, 3},
	} {
		st, err := station.New(s.id, "Station "+s.id, "", s.lat, s.lng, s.capacity)
		require.NoError(t, err)
		require.NoError(t, fleet.AddStation(st))
	}
	for _, b := range []struct {
		id, station string
		typ         bike.Type
	}{
		{"BIKE-001", "ST-A", bike.Standard},
		{"BIKE-002", "ST-A", bike.Electric},
		{"BIKE-003", "ST-B", bike.Standard},
	} {
		nb, err := bike.New(b.id, b.typ)
		require.NoError(t, err)
		require.NoError(t, fleet.AddBike(nb, b.station))
	}
	for _, r := range []struct {
		id string
		m  customer.Membership
	}{
		{"user-1", customer.Basic},
		{"user-2", customer.Premium},
	} {
		c, err := customer.Restore(customer.Snapshot{ID: r.id, Name: r.id, Status: customer.Active, Membership: r.m, Balance: 20})
		require.NoError(t, err)
		require.NoError(t, fleet.AddRider(c))
	}

	ts := &TestServer{
		Fleet:    fleet,
		Clock:    &clock{t: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)},
		Payments: payment.NewFake(),
		Profiles: auth0.NewFakeClient(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics, err := rental.NewMetrics(reg)
	require.NoError(t, err)

	var seq atomic.Int64
	ts.Service = rental.New(fleet,
		rental.WithLogger(logger),
		rental.WithClock(ts.Clock.Now),
		rental.WithAuthorizer(ts.Payments),
		rental.WithMetrics(metrics),
		rental.WithIDGenerator(func() string { return fmt.Sprintf("RIDE-%03d", seq.Add(1)) }),
	)

	ts.Router = api.New(ts.Service, api.Config{
		Logger:          logger,
		Registry:        reg,
		Auth:            gin.HandlersChain{fakeAuthMiddleware()},
		Profiles:        ts.Profiles,
		MetricsUsername: opsUser,
		MetricsPassword: opsPassword,
	}).Router()
	return ts
}

// fakeAuthMiddleware takes the rider id from the X-User-ID header instead of
// a validated token.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		c.Set(middleware.RiderIDKey, userID)
		c.Next()
	}
}

func asUser(id string) map[string]string {
	return map[string]string{"X-User-ID": id}
}

func (ts *TestServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodGet, path, nil, headers)
}

func (ts *TestServer) POST(path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, path, body, headers)
}

func (ts *TestServer) DELETE(path string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodDelete, path, nil, headers)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func requireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	require.Equal(t, code, decode[errorResponse](t, w).Code)
}
