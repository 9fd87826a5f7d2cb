package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	cartcontrollers "github.com/angelmondragon/offline-pos/api/controllers/cart"
	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	drafts := cart.NewMemoryDrafts()
	reg, err := cart.NewRegister(drafts, drafts, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	promReg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:      &config.Config{App: config.AppConfig{Env: "dev"}},
		Logger:      logger.Nop(),
		Store:       stubPinger{},
		Cart:        cartcontrollers.NewHandlers(reg, nil, nil, nil),
		Gatherer:    promReg,
		HTTPMetrics: metrics.NewHTTPMetrics(promReg),
	})
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: missing request id header", path)
		}
	}
}

func TestCartRouteServesActiveCart(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"session_id"`) {
		t.Fatalf("expected cart payload, got %s", rec.Body.String())
	}
}

func TestMissingServicesAnswerDependencyError(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesHTTPSeries(t *testing.T) {
	router := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pos_http_requests_total") {
		t.Fatalf("expected http metrics in output")
	}
}

func TestProfilerOnlyInDev(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected profiler index in dev, got %d", rec.Code)
	}

	prod := NewRouter(Deps{
		Config: &config.Config{App: config.AppConfig{Env: "prod"}},
		Logger: logger.Nop(),
	})
	rec = httptest.NewRecorder()
	prod.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected no profiler in prod, got %d", rec.Code)
	}
}
