package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Jobs().Track("obligations:generate").End(nil))

	body := scrape(t, metrics)
	assert.Contains(t, body, `appmato_jobs_total{job="obligations:generate",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `appmato_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `appmato_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDashboardMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveCache("snapshot", true)
	metrics.ObserveCache("snapshot", false)
	metrics.ObserveCache("snapshot", false)
	metrics.ObserveBuild("matrix", 20*time.Millisecond)

	body := scrape(t, metrics)
	assert.Contains(t, body, `appmato_dashboard_cache_lookups_total{result="miss",view="snapshot"} 2`)
	assert.Contains(t, body, `appmato_dashboard_build_duration_seconds_count{view="matrix"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveCache("snapshot", true)
	nilMetrics.ObserveBuild("snapshot", time.Second)
}
