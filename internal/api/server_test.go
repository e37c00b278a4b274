package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/metrics"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/sync"
	"github.com/stayops/calsync-backend/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner satisfies SyncRunner without touching any store.
type fakeRunner struct {
	allResp     *sync.SyncAllResponse
	allErr      error
	listingResp *sync.SyncListingResponse
	listingErr  error

	lastTrigger models.TriggerSource
	lastListing uuid.UUID
	lastSession *uuid.UUID
}

func (f *fakeRunner) SyncAll(ctx context.Context, triggeredBy models.TriggerSource) (*sync.SyncAllResponse, error) {
	f.lastTrigger = triggeredBy
	if f.allErr != nil {
		return nil, f.allErr
	}
	return f.allResp, nil
}

func (f *fakeRunner) SyncListing(ctx context.Context, listingID uuid.UUID, sessionID *uuid.UUID, triggeredBy models.TriggerSource) (*sync.SyncListingResponse, error) {
	f.lastTrigger = triggeredBy
	f.lastListing = listingID
	f.lastSession = sessionID
	if f.listingErr != nil {
		return nil, f.listingErr
	}
	return f.listingResp, nil
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:                8080,
			Environment:         "test",
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
			IdleTimeoutSeconds:  60,
			MaxHeaderBytes:      1 << 20,
			CorsAllowedOrigins:  []string{"*"},
		},
	}
}

// newTestServer builds a full server around a fake runner. The repository
// and pubsub service stay nil; tests only exercise routes that never reach
// them.
func newTestServer(runner SyncRunner, monitor *metrics.Monitor) *Server {
	return NewServer(testServerConfig(), nil, runner, nil, monitor)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, nil)

	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	utils.AssertEqual(t, http.StatusOK, w.Code, "health status")
	utils.AssertContains(t, w.Body.String(), "healthy", "health body")
	utils.AssertContains(t, w.Body.String(), "calsync-backend", "service name")
}

func TestServer_RequestIDHeader(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, nil)

	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	utils.AssertTrue(t, w.Header().Get("X-Request-ID") != "", "generated request id")

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	srv.GetRouter().ServeHTTP(w, req)
	utils.AssertEqual(t, "req-123", w.Header().Get("X-Request-ID"), "echoed request id")
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/listings", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	srv.GetRouter().ServeHTTP(w, req)

	utils.AssertEqual(t, http.StatusNoContent, w.Code, "preflight status")
	utils.AssertEqual(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"), "allowed origin")
}

func TestServer_RequestMetricsRecorded(t *testing.T) {
	monitor := metrics.NewMonitor()
	srv := newTestServer(&fakeRunner{}, monitor)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		srv.GetRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(monitor.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200"))
	utils.AssertEqual(t, 3.0, got, "request counter")
}
