// Package searcher is the outbound face of the search core: it rebuilds the
// index from the record store and answers supplier, field and free-text
// searches with ranked product ids.
package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

// Operation names used for cache keys, metrics and spans.
const (
	OpSearch            = "search"
	OpSearchBySupplier  = "supplier"
	OpSearchByField     = "field"
	OpSearchWithFilters = "filtered"
)

const defaultCommitBatch = 1000

// ProductSource lists canonical records for a full rebuild.
type ProductSource interface {
	ListAll(ctx context.Context, fn func(catalog.Product) error) error
}

// ReindexReport summarises one IndexAll run.
type ReindexReport struct {
	Indexed  int           `json:"indexed"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"-"`
}

// QueryResults is the answer to a filtered supplier search. MatchingCount
// counts every match, not just the returned page.
type QueryResults struct {
	ProductIDs    []string `json:"productIds"`
	MatchingCount int      `json:"matchingCount"`
}

type Option func(*Service)

func WithCache(c *cache.QueryCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracker reports every search and rebuild to t.
func WithTracker(t analytics.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithCommitBatch sets how many documents IndexAll buffers between commits.
func WithCommitBatch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Service owns no global state; every instance works against the engine it
// was given.
type Service struct {
	engine    *indexer.Engine
	source    ProductSource
	exec      *executor.Executor
	cache     *cache.QueryCache
	metrics   *metrics.Metrics
	tracker   analytics.Tracker
	cfg       config.SearchConfig
	batchSize int
	sem       *semaphore.Weighted
	reindexMu sync.Mutex
	logger    *slog.Logger
}

func NewService(engine *indexer.Engine, source ProductSource, cfg config.SearchConfig, opts ...Option) *Service {
	s := &Service{
		engine:    engine,
		source:    source,
		exec:      executor.New(),
		cfg:       cfg,
		batchSize: defaultCommitBatch,
		logger:    slog.Default().With("component", "search-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	if cfg.MaxConcurrentQueries > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentQueries))
	}
	return s
}

// IndexAll clears the index and rebuilds it from every record in the source,
// committing every batch and once at the end. Records without an id are
// skipped; records the engine rejects are counted as failed and reported
// through ErrPartialReindex. The report is returned in every case.
func (s *Service) IndexAll(ctx context.Context) (ReindexReport, error) {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	start := time.Now()
	var report ReindexReport
	log := logger.FromContext(ctx).With("component", "search-service")
	log.Info("reindex started")

	if err := s.engine.Clear(); err != nil {
		return report, fmt.Errorf("reindex: %w", err)
	}

	pending := 0
	err := s.source.ListAll(ctx, func(p catalog.Product) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.HasID() {
			report.Skipped++
			s.metrics.DocsSkippedTotal.Inc()
			return nil
		}
		if err := s.engine.AddDocument(index.FromProduct(p)); err != nil {
			report.Failed++
			s.metrics.DocsSkippedTotal.Inc()
			log.Warn("product not indexed", "product_id", p.ProductID, "error", err)
			return nil
		}
		report.Indexed++
		s.metrics.DocsIndexedTotal.Inc()
		if pending++; pending >= s.batchSize {
			pending = 0
			if err := s.commit(); err != nil {
				return err
			}
			log.Debug("reindex batch committed", "indexed", report.Indexed)
		}
		return nil
	})
	if err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("reindex aborted after %d products: %w", report.Indexed, err)
	}
	if err := s.commit(); err != nil {
		report.Duration = time.Since(start)
		return report, fmt.Errorf("reindex final commit: %w", err)
	}
	report.Duration = time.Since(start)
	s.metrics.ReindexDuration.Observe(report.Duration.Seconds())
	if s.tracker != nil {
		s.tracker.TrackReindex(analytics.ReindexEvent{
			Indexed:    report.Indexed,
			Skipped:    report.Skipped,
			Failed:     report.Failed,
			DurationMs: report.Duration.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn("cache invalidation after reindex failed", "error", err)
		}
	}
	log.Info("reindex finished",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration.Round(time.Millisecond),
	)
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d products failed", apperrors.ErrPartialReindex,
			report.Failed, report.Indexed+report.Failed)
	}
	return report, nil
}

// IndexOne buffers a single product. It becomes searchable at the next
// Commit, whether explicit or from the engine's commit loop.
func (s *Service) IndexOne(ctx context.Context, p catalog.Product) error {
	if err := s.engine.AddDocument(index.FromProduct(p)); err != nil {
		return err
	}
	s.metrics.DocsIndexedTotal.Inc()
	logger.FromContext(ctx).Debug("product buffered", "product_id", p.ProductID)
	return nil
}

// Commit publishes buffered documents.
func (s *Service) Commit(ctx context.Context) error {
	return s.commit()
}

func (s *Service) commit() error {
	if err := s.engine.Commit(); err != nil {
		s.metrics.IndexCommitsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.IndexCommitsTotal.WithLabelValues("ok").Inc()
	st := s.engine.Stats()
	s.metrics.IndexDocuments.Set(float64(st.Documents))
	s.metrics.IndexSegments.Set(float64(st.Segments))
	s.metrics.IndexGeneration.Set(float64(st.Generation))
	return nil
}

// Search parses text with supplier as the default field.
func (s *Service) Search(ctx context.Context, text string, maxResults int) ([]string, error) {
	if strings.TrimSpace(text) == "" || maxResults <= 0 {
		return []string{}, nil
	}
	q, err := parser.Parse(index.FieldSupplier, text)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, OpSearch, q, maxResults)
	if err != nil {
		return nil, err
	}
	return res.ProductIDs(), nil
}

// SearchBySupplier matches products of any supplier in the comma-separated
// list, each id as an exact phrase.
func (s *Service) SearchBySupplier(ctx context.Context, suppliersCSV string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		return []string{}, nil
	}
	q := query.SupplierSet(suppliersCSV)
	if q == nil {
		return []string{}, nil
	}
	res, err := s.run(ctx, OpSearchBySupplier, q, maxResults)
	if err != nil {
		return nil, err
	}
	return res.ProductIDs(), nil
}

// SearchByField parses text against field. A field that is not searchable
// is a syntax error.
func (s *Service) SearchByField(ctx context.Context, field, text string, maxResults int) ([]string, error) {
	if strings.TrimSpace(text) == "" || maxResults <= 0 {
		return []string{}, nil
	}
	q, err := parser.Parse(field, text)
	if err != nil {
		return nil, err
	}
	res, err := s.run(ctx, OpSearchByField, q, maxResults)
	if err != nil {
		return nil, err
	}
	return res.ProductIDs(), nil
}

// SearchBySupplierWithFilters restricts the supplier set by optional fuzzy
// brand and description filters.
func (s *Service) SearchBySupplierWithFilters(ctx context.Context, suppliersCSV, brand, description string, maxResults int) (QueryResults, error) {
	empty := QueryResults{ProductIDs: []string{}}
	if maxResults <= 0 {
		return empty, nil
	}
	q := query.Composite(suppliersCSV, brand, description)
	if q == nil {
		return empty, nil
	}
	res, err := s.run(ctx, OpSearchWithFilters, q, maxResults)
	if err != nil {
		return QueryResults{}, err
	}
	return QueryResults{ProductIDs: res.ProductIDs(), MatchingCount: res.TotalHits}, nil
}

// Stats describes the committed index in one line.
func (s *Service) Stats(ctx context.Context) (string, error) {
	snap, err := s.engine.OpenSnapshot()
	if err != nil {
		return "", err
	}
	defer snap.Release()
	return fmt.Sprintf("Index contains %d documents", snap.DocCount()), nil
}

// IndexStats is the structured form of Stats.
func (s *Service) IndexStats() indexer.Stats {
	return s.engine.Stats()
}

// CacheStats reports result cache counters; ok is false without a cache.
func (s *Service) CacheStats() (cache.Stats, bool) {
	if s.cache == nil {
		return cache.Stats{}, false
	}
	return s.cache.Stats(), true
}

func (s *Service) run(ctx context.Context, op string, q query.Query, limit int) (*executor.SearchResult, error) {
	if q == nil {
		return &executor.SearchResult{}, nil
	}
	start := time.Now()
	if s.cfg.MaxResults > 0 && limit > s.cfg.MaxResults {
		limit = s.cfg.MaxResults
	}
	ctx, span := tracing.StartSpan(ctx, "search."+op)
	defer span.End()
	span.SetAttr("query", q.String())
	span.SetAttr("limit", limit)

	var (
		res      *executor.SearchResult
		cacheTag = "none"
	)
	err := resilience.WithTimeout(ctx, s.cfg.Timeout, "search."+op, func(ctx context.Context) error {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
		}
		snap, err := s.engine.OpenSnapshot()
		if err != nil {
			return err
		}
		defer snap.Release()

		_, evalSpan := tracing.StartSpan(ctx, "evaluate")
		defer evalSpan.End()
		compute := func() (*executor.SearchResult, error) {
			return s.exec.Execute(ctx, snap, q, limit)
		}
		if s.cache == nil {
			res, err = compute()
			return err
		}
		key := cache.Key{Operation: op, Query: q.String(), Limit: limit, Generation: snap.Generation()}
		var hit bool
		res, hit, err = s.cache.GetOrCompute(ctx, key, compute)
		if hit {
			cacheTag = "hit"
			s.metrics.CacheHitsTotal.Inc()
		} else {
			cacheTag = "miss"
			s.metrics.CacheMissesTotal.Inc()
		}
		evalSpan.SetAttr("cache", cacheTag)
		return err
	})

	if err != nil {
		s.metrics.SearchLatency.WithLabelValues(op, "none").Observe(time.Since(start).Seconds())
		s.metrics.SearchQueriesTotal.WithLabelValues(op, "error").Inc()
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("search failed",
				"operation", op,
				"query", q.String(),
				"request_id", logger.RequestID(ctx),
				"error", err,
			)
		}
		return nil, err
	}
	s.metrics.SearchLatency.WithLabelValues(op, cacheTag).Observe(time.Since(start).Seconds())
	outcome := "hit"
	if len(res.Results) == 0 {
		outcome = "zero_result"
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(op, outcome).Inc()
	s.metrics.SearchResultsCount.WithLabelValues(op).Observe(float64(len(res.Results)))
	span.SetAttr("total_hits", res.TotalHits)
	if s.tracker != nil {
		s.tracker.TrackSearch(analytics.SearchEvent{
			Operation: op,
			Query:     q.String(),
			TotalHits: res.TotalHits,
			Returned:  len(res.Results),
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			CacheHit:  cacheTag == "hit",
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}
	return res, nil
}
