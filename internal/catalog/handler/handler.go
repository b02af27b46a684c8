// Package handler serves the catalog search HTTP API. Index-backed searches
// return product ids from the search service and hydrate them from the
// record store; database routes query the store directly.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/events"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/validator"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
)

// SearchService is the part of *searcher.Service the API calls.
type SearchService interface {
	IndexAll(ctx context.Context) (searcher.ReindexReport, error)
	Search(ctx context.Context, text string, maxResults int) ([]string, error)
	SearchBySupplier(ctx context.Context, suppliersCSV string, maxResults int) ([]string, error)
	SearchByField(ctx context.Context, field, text string, maxResults int) ([]string, error)
	SearchBySupplierWithFilters(ctx context.Context, suppliersCSV, brand, description string, maxResults int) (searcher.QueryResults, error)
	Stats(ctx context.Context) (string, error)
	IndexStats() indexer.Stats
	CacheStats() (cache.Stats, bool)
}

type Option func(*Handler)

// WithUpsertPublisher makes product writes announce upserts over Kafka
// instead of rebuilding the index in-process.
func WithUpsertPublisher(pub events.Publisher) Option {
	return func(h *Handler) { h.upserts = pub }
}

// WithStoreBreaker guards record store reads with cb.
func WithStoreBreaker(cb *resilience.CircuitBreaker) Option {
	return func(h *Handler) { h.breaker = cb }
}

type Handler struct {
	svc     SearchService
	store   catalog.Store
	upserts events.Publisher
	breaker *resilience.CircuitBreaker
	cfg     config.SearchConfig
	logger  *slog.Logger
}

func New(svc SearchService, store catalog.Store, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		svc:    svc,
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "catalog-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.breaker == nil {
		h.breaker = resilience.NewCircuitBreaker("product-store", resilience.CircuitBreakerConfig{
			IsFailure: IsStoreFailure,
		})
	}
	return h
}

// RebuildIndex handles POST /api/search/index/rebuild. The rebuild is
// detached from the request: it clears the index first, so abandoning it
// halfway would leave searches empty.
func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	start := time.Now()
	report, err := h.svc.IndexAll(ctx)
	elapsed := fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	body := map[string]any{
		"timeTaken": elapsed,
		"indexed":   report.Indexed,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	}
	switch {
	case err == nil:
		body["status"] = "success"
		body["message"] = "Index rebuilt successfully"
		h.writeJSON(w, http.StatusOK, body)
	case errors.Is(err, apperrors.ErrPartialReindex):
		logger.FromContext(ctx).Warn("index rebuilt with failures", "error", err)
		body["status"] = "partial"
		body["message"] = err.Error()
		h.writeJSON(w, http.StatusOK, body)
	default:
		logger.FromContext(ctx).Error("index rebuild failed", "error", err)
		h.writeJSON(w, statusCode(err), map[string]string{
			"status":  "error",
			"message": "Failed to rebuild index: " + err.Error(),
		})
	}
}

// IndexStats handles GET /api/search/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("index stats failed", "error", err)
		h.writeJSON(w, statusCode(err), map[string]string{
			"status":  "error",
			"message": "Failed to get index stats: " + err.Error(),
		})
		return
	}
	body := map[string]any{
		"status": "success",
		"stats":  stats,
		"index":  h.svc.IndexStats(),
	}
	if cs, ok := h.svc.CacheStats(); ok {
		body["cache"] = cs
	}
	h.writeJSON(w, http.StatusOK, body)
}

// Search handles GET /api/search/lucene.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	text, ok := h.requireParam(w, r, "query")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r, h.cfg.DefaultLimit)
	if !ok {
		return
	}
	h.searchAndHydrate(w, r, "lucene", func(ctx context.Context) ([]string, error) {
		return h.svc.Search(ctx, text, limit)
	})
}

// SearchBySupplier handles GET /api/search/supplier.
func (h *Handler) SearchBySupplier(w http.ResponseWriter, r *http.Request) {
	suppliers, ok := h.requireParam(w, r, "supplierIds")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r, h.cfg.SupplierLimit)
	if !ok {
		return
	}
	h.searchAndHydrate(w, r, "supplier", func(ctx context.Context) ([]string, error) {
		return h.svc.SearchBySupplier(ctx, suppliers, limit)
	})
}

// SearchByField handles GET /api/search/lucene/field.
func (h *Handler) SearchByField(w http.ResponseWriter, r *http.Request) {
	field, ok := h.requireParam(w, r, "field")
	if !ok {
		return
	}
	text, ok := h.requireParam(w, r, "query")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r, h.cfg.DefaultLimit)
	if !ok {
		return
	}
	h.searchAndHydrate(w, r, "field", func(ctx context.Context) ([]string, error) {
		return h.svc.SearchByField(ctx, field, text, limit)
	})
}

// SearchDatabase handles GET /api/search/database.
func (h *Handler) SearchDatabase(w http.ResponseWriter, r *http.Request) {
	term, ok := h.requireParam(w, r, "query")
	if !ok {
		return
	}
	limit, ok := h.limit(w, r, h.cfg.DefaultLimit)
	if !ok {
		return
	}
	start := time.Now()
	products, err := h.storeRead(func() ([]catalog.Product, error) {
		return h.store.SearchLike(r.Context(), term, limit)
	})
	if err != nil {
		h.fail(w, r, "database search failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("database search completed",
		"query", term,
		"results", len(products),
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, products)
}

type compareLeg struct {
	TimeMs       float64 `json:"timeMs"`
	ResultsCount int     `json:"resultsCount"`
}

// Compare handles GET /api/search/compare and times the index against the
// database for the same text.
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	text, ok := h.requireParam(w, r, "query")
	if !ok {
		return
	}
	ctx := r.Context()

	start := time.Now()
	ids, err := h.svc.Search(ctx, text, h.cfg.DefaultLimit)
	if err != nil {
		h.fail(w, r, "index search failed", err)
		return
	}
	index := compareLeg{TimeMs: millis(time.Since(start)), ResultsCount: len(ids)}

	start = time.Now()
	rows, err := h.storeRead(func() ([]catalog.Product, error) {
		return h.store.SearchLike(ctx, text, h.cfg.MaxResults)
	})
	if err != nil {
		h.fail(w, r, "database search failed", err)
		return
	}
	db := compareLeg{TimeMs: millis(time.Since(start)), ResultsCount: len(rows)}

	var speedup float64
	if index.TimeMs > 0 {
		speedup = db.TimeMs / index.TimeMs
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":         text,
		"lucene":        index,
		"database":      db,
		"speedupFactor": speedup,
	})
}

// ProductsBySupplier handles GET /api/products/supplier/{supplier}.
func (h *Handler) ProductsBySupplier(w http.ResponseWriter, r *http.Request) {
	h.productsBySuppliers(w, r, []string{r.PathValue("supplier")})
}

// ProductsBySupplierList handles GET /api/products/suppliers/{suppliers}
// and GET /api/products/suppliers?suppliers=.
func (h *Handler) ProductsBySupplierList(w http.ResponseWriter, r *http.Request) {
	csv := r.PathValue("suppliers")
	if csv == "" {
		var ok bool
		if csv, ok = h.requireParam(w, r, "suppliers"); !ok {
			return
		}
	}
	h.productsBySuppliers(w, r, catalog.SplitCSV(csv))
}

func (h *Handler) productsBySuppliers(w http.ResponseWriter, r *http.Request, suppliers []string) {
	products, err := h.storeRead(func() ([]catalog.Product, error) {
		return h.store.FindBySuppliers(r.Context(), suppliers)
	})
	if err != nil {
		h.fail(w, r, "supplier lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

// ProductBySupplierWithFilters handles GET /api/productBySupplier/{supplierIds}.
func (h *Handler) ProductBySupplierWithFilters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	suppliers := r.PathValue("supplierIds")
	brand := r.URL.Query().Get("brandSearch")
	description := r.URL.Query().Get("itemDescriptionSearch")
	limit, ok := h.limit(w, r, h.cfg.FilteredLimit)
	if !ok {
		return
	}

	start := time.Now()
	res, err := h.svc.SearchBySupplierWithFilters(ctx, suppliers, brand, description, limit)
	if err != nil {
		h.fail(w, r, "filtered supplier search failed", err)
		return
	}
	products, err := h.hydrate(ctx, res.ProductIDs)
	if err != nil {
		h.fail(w, r, "hydrating products failed", err)
		return
	}
	logger.FromContext(ctx).Info("filtered supplier search completed",
		"suppliers", suppliers,
		"brand", brand,
		"description", description,
		"matching", res.MatchingCount,
		"returned", len(products),
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"products":      products,
		"totalProducts": res.MatchingCount,
	})
}

// GetProduct handles GET /api/products/{productId}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := resilience.Call(h.breaker, func() (*catalog.Product, error) {
		return h.store.Get(r.Context(), r.PathValue("productId"))
	})
	if err != nil {
		h.fail(w, r, "product lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// UpsertProducts handles POST /api/products. Records are written to the
// store, then either announced over Kafka or picked up by an in-process
// rebuild. Upserts never append to the live index, which would leave the
// replaced record searchable.
func (h *Handler) UpsertProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var products []catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&products); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body: expected an array of products")
		return
	}
	if err := validator.ValidateBatch(products); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for i := range products {
		products[i].ProductID = strings.TrimSpace(products[i].ProductID)
	}

	if err := h.store.InsertBatch(ctx, products); err != nil {
		h.fail(w, r, "storing products failed", err)
		return
	}

	mode := "direct"
	if h.upserts != nil {
		mode = "event"
		if err := events.PublishUpserts(ctx, h.upserts, products); err != nil {
			h.fail(w, r, "publishing upserts failed", err)
			return
		}
	} else if _, err := h.svc.IndexAll(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, apperrors.ErrPartialReindex) {
		h.fail(w, r, "rebuilding index failed", err)
		return
	}
	logger.FromContext(ctx).Info("products upserted", "count", len(products), "indexing", mode)
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"count":    len(products),
		"indexing": mode,
	})
}

func (h *Handler) searchAndHydrate(w http.ResponseWriter, r *http.Request, kind string, search func(context.Context) ([]string, error)) {
	ctx := r.Context()
	start := time.Now()
	ids, err := search(ctx)
	if err != nil {
		h.fail(w, r, kind+" search failed", err)
		return
	}
	products, err := h.hydrate(ctx, ids)
	if err != nil {
		h.fail(w, r, "hydrating products failed", err)
		return
	}
	logger.FromContext(ctx).Info("search completed",
		"kind", kind,
		"hits", len(ids),
		"returned", len(products),
		"latency", time.Since(start),
	)
	h.writeJSON(w, http.StatusOK, products)
}

// hydrate loads records for ids in ranked order; ids the store no longer
// has are dropped.
func (h *Handler) hydrate(ctx context.Context, ids []string) ([]catalog.Product, error) {
	if len(ids) == 0 {
		return []catalog.Product{}, nil
	}
	return h.storeRead(func() ([]catalog.Product, error) {
		return h.store.GetMany(ctx, ids)
	})
}

func (h *Handler) storeRead(fn func() ([]catalog.Product, error)) ([]catalog.Product, error) {
	products, err := resilience.Call(h.breaker, fn)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []catalog.Product{}
	}
	return products, nil
}

func (h *Handler) requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	q := r.URL.Query()
	if !q.Has(name) {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameter '%s' is required", name))
		return "", false
	}
	return q.Get(name), true
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	if h.cfg.MaxResults > 0 && n > h.cfg.MaxResults {
		n = h.cfg.MaxResults
	}
	return n, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(msg, "error", err, "status_code", status)
		if status == http.StatusInternalServerError {
			h.writeError(w, status, msg)
			return
		}
	} else {
		log.Warn(msg, "error", err, "status_code", status)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func statusCode(err error) int {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return apperrors.HTTPStatusCode(err)
}

// IsStoreFailure reports whether err from the record store should count
// against a circuit breaker. Absent products and cancelled callers do not.
func IsStoreFailure(err error) bool {
	return !errors.Is(err, apperrors.ErrProductNotFound) && !errors.Is(err, context.Canceled)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
