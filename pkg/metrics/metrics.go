// Package metrics defines the Prometheus collectors for the catalog search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service records into.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsSkippedTotal     prometheus.Counter
	IndexCommitsTotal    *prometheus.CounterVec
	IndexDocuments       prometheus.Gauge
	IndexSegments        prometheus.Gauge
	IndexGeneration      prometheus.Gauge
	ReindexDuration      prometheus.Histogram
	LoaderRowsTotal      *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_search_queries_total",
				Help: "Search operations by operation and outcome (hit, zero_result, error).",
			},
			[]string{"operation", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_search_latency_seconds",
				Help:    "Search latency in seconds by operation and cache status.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "cache"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_search_results_count",
				Help:    "Number of product ids returned per search.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
			},
			[]string{"operation"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_docs_indexed_total",
				Help: "Total product documents added to the index.",
			},
		),
		DocsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_docs_skipped_total",
				Help: "Products skipped during indexing for a missing id or a failed add.",
			},
		),
		IndexCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_index_commits_total",
				Help: "Index commits by status.",
			},
			[]string{"status"},
		),
		IndexDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_index_documents",
				Help: "Documents visible in the latest committed generation.",
			},
		),
		IndexSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_index_segments",
				Help: "Live segment files in the latest committed generation.",
			},
		),
		IndexGeneration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_index_generation",
				Help: "Latest committed index generation.",
			},
		),
		ReindexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_reindex_duration_seconds",
				Help:    "Wall time of full rebuilds.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		LoaderRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loader_rows_total",
				Help: "Feed rows processed by the bulk loader by status (inserted, skipped).",
			},
			[]string{"status"},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_events_consumed_total",
				Help: "Kafka events handled by topic and status.",
			},
			[]string{"topic", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsSkippedTotal,
		m.IndexCommitsTotal,
		m.IndexDocuments,
		m.IndexSegments,
		m.IndexGeneration,
		m.ReindexDuration,
		m.LoaderRowsTotal,
		m.EventsConsumedTotal,
		m.CircuitBreakerState,
	)
	return m
}

// NewUnregistered returns collectors bound to a throwaway registry, for tests
// and tools that never serve /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
