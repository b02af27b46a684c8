package router

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/handler"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/store"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/middleware"
)

func newServer(t *testing.T, limiter *ratelimit.Limiter) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.SQLite.Path = ":memory:"
	st, err := store.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.InsertBatch(ctx, []catalog.Product{
		{ProductID: "P1", Supplier: "S1", DigitalBrandName: "Coke"},
		{ProductID: "P2", Supplier: "S2", DigitalBrandName: "Pepsi"},
	}))

	cfg.Indexer.DataDir = t.TempDir()
	eng, err := indexer.Open(cfg.Indexer)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	agg := analytics.NewAggregator()
	m := metrics.NewUnregistered()
	svc := searcher.NewService(eng, st, cfg.Search, searcher.WithTracker(agg), searcher.WithMetrics(m))
	_, err = svc.IndexAll(ctx)
	require.NoError(t, err)

	checker := health.NewChecker()
	checker.Register("store", health.Ping(st.Ping, true))

	srv := httptest.NewServer(New(Deps{
		Catalog:   handler.New(svc, st, cfg.Search),
		Analytics: agg,
		Health:    checker,
		Limiter:   limiter,
		Metrics:   m,
		Timeout:   5 * time.Second,
	}))
	t.Cleanup(srv.Close)
	return srv, m
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb strings.Builder
	_, err = io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return resp, sb.String()
}

func TestRoutesThroughMiddleware(t *testing.T) {
	srv, m := newServer(t, nil)

	resp, body := get(t, srv.URL+"/api/productBySupplier/S1?brandSearch=coke")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"totalProducts":1`)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	resp, body = get(t, srv.URL+"/api/products/suppliers/S1,S2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"productId":"P2"`)

	resp, body = get(t, srv.URL+"/api/products/P1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"supplier":"S1"`)

	resp, body = get(t, srv.URL+"/api/analytics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "total_searches")

	resp, _ = get(t, srv.URL+"/health/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = get(t, srv.URL+"/api/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/productBySupplier/{supplierIds}", "200")))
}

func TestRateLimitedRoutes(t *testing.T) {
	srv, _ := newServer(t, ratelimit.New(1, time.Minute))

	resp, _ := get(t, srv.URL+"/api/search/supplier?supplierIds=S1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = get(t, srv.URL+"/api/search/supplier?supplierIds=S1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = get(t, srv.URL+"/health/live")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
