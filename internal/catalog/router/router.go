// Package router wires the catalog search routes and applies the middleware
// chain.
package router

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/handler"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/middleware"
)

// Deps are the handlers and middleware state the router mounts. Analytics,
// Limiter and Metrics are optional.
type Deps struct {
	Catalog   *handler.Handler
	Analytics *analytics.Aggregator
	Health    *health.Checker
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	Timeout   time.Duration
}

// RebuildPaths are the routes that may run a full index rebuild. They are
// not bounded by the request timeout.
var RebuildPaths = []string{"/api/search/index/rebuild", "/api/products"}

// New builds the HTTP handler.
//
// Route table:
//
//	POST /api/search/index/rebuild          → rebuild index from the store
//	GET  /api/search/index/stats            → index statistics
//	GET  /api/search/lucene                 → free-text search (supplier default field)
//	GET  /api/search/supplier               → supplier id search
//	GET  /api/search/lucene/field           → single-field search
//	GET  /api/search/database               → store LIKE search
//	GET  /api/search/compare                → index vs store timing
//	GET  /api/products/{productId}          → one record
//	POST /api/products                      → upsert records
//	GET  /api/products/supplier/{supplier}  → store lookup by supplier
//	GET  /api/products/suppliers/{suppliers}
//	GET  /api/products/suppliers            → store lookup by supplier list
//	GET  /api/productBySupplier/{supplierIds} → filtered supplier search
//	GET  /api/analytics                     → aggregated search analytics
//	GET  /health/live, /health/ready, /metrics
//
// Middleware chain (outermost first):
//
//	Recover → RequestID → CORS → RateLimit → Timeout → Metrics → mux
//
// Metrics sits next to the mux so it sees the matched pattern. Timeout skips
// RebuildPaths.
func New(d Deps) http.Handler {
	h := d.Catalog
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/search/index/rebuild", h.RebuildIndex)
	mux.HandleFunc("GET /api/search/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/search/lucene", h.Search)
	mux.HandleFunc("GET /api/search/supplier", h.SearchBySupplier)
	mux.HandleFunc("GET /api/search/lucene/field", h.SearchByField)
	mux.HandleFunc("GET /api/search/database", h.SearchDatabase)
	mux.HandleFunc("GET /api/search/compare", h.Compare)

	mux.HandleFunc("POST /api/products", h.UpsertProducts)
	mux.HandleFunc("GET /api/products/{productId}", h.GetProduct)
	mux.HandleFunc("GET /api/products/supplier/{supplier}", h.ProductsBySupplier)
	mux.HandleFunc("GET /api/products/suppliers/{suppliers}", h.ProductsBySupplierList)
	mux.HandleFunc("GET /api/products/suppliers", h.ProductsBySupplierList)
	mux.HandleFunc("GET /api/productBySupplier/{supplierIds}", h.ProductBySupplierWithFilters)

	if d.Analytics != nil {
		mux.HandleFunc("GET /api/analytics", analyticsStats(d.Analytics))
	}
	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}
	if d.Metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	mws := []func(http.Handler) http.Handler{
		middleware.Recover,
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig()),
	}
	if d.Limiter != nil {
		mws = append(mws, middleware.RateLimit(d.Limiter))
	}
	if d.Timeout > 0 {
		mws = append(mws, middleware.Timeout(d.Timeout, RebuildPaths...))
	}
	if d.Metrics != nil {
		mws = append(mws, middleware.Metrics(d.Metrics))
	}
	return middleware.Chain(mux, mws...)
}

func analyticsStats(agg *analytics.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(agg.Stats()); err != nil {
			slog.Error("failed to write analytics response", "error", err)
		}
	}
}
