package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/shopsync/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesSyncMetrics(t *testing.T) {
	metrics := NewMetrics()
	sync := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, sync.Track("sync:product").End(nil))
	sync.AddItems("product", "created", 2)

	body := scrape(t, metrics)
	require.Contains(t, body, `shopsync_runs_total{job="sync:product",status="success"} 1`)
	require.Contains(t, body, `shopsync_items_total{entity="product",outcome="created"} 2`)
	require.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/sync/{entity}")

	req := httptest.NewRequest(http.MethodPost, "/sync/products", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `shopsync_http_requests_total{code="409",route="/sync/{entity}"} 1`)
	require.True(t, strings.Contains(body, `shopsync_http_request_duration_seconds_bucket{route="/sync/{entity}"`))
}

func TestNilMetricsHandler(t *testing.T) {
	var m *Metrics
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
