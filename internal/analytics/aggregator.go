package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

const latencyWindow = 10000

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	SearchesByOp      map[string]int64 `json:"searches_by_operation"`
	CacheHits         int64            `json:"cache_hits"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      float64          `json:"p50_latency_ms"`
	P95LatencyMs      float64          `json:"p95_latency_ms"`
	P99LatencyMs      float64          `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Reindexes         int64            `json:"reindexes"`
	LastReindex       *ReindexEvent    `json:"last_reindex,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running statistics. It is a Tracker itself,
// so a process without Kafka can feed it directly.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	byOp        map[string]int64
	cacheHits   int64
	zeroResults int64
	latencies   []float64 // ring of the last latencyWindow samples
	next        int
	queries     map[string]int64
	zeroQueries map[string]int64
	reindexes   int64
	lastReindex *ReindexEvent
	startTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byOp:        make(map[string]int64),
		latencies:   make([]float64, 0, 1024),
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		startTime:   time.Now(),
		now:         time.Now,
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) TrackSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.byOp[e.Operation]++
	if e.CacheHit {
		a.cacheHits++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.next] = e.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.queries[e.Query]++
	if e.TotalHits == 0 {
		a.zeroResults++
		a.zeroQueries[e.Query]++
	}
}

func (a *Aggregator) TrackReindex(e ReindexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reindexes++
	a.lastReindex = &e
}

// HandleEvent decodes analytics topic messages into the aggregator.
// Undecodable messages are logged and dropped.
func (a *Aggregator) HandleEvent() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		e, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			a.logger.Warn("dropping undecodable analytics event", "error", err)
			return nil
		}
		switch {
		case e.Type == EventSearch && e.Search != nil:
			a.TrackSearch(*e.Search)
		case e.Type == EventReindex && e.Reindex != nil:
			a.TrackReindex(*e.Reindex)
		default:
			a.logger.Warn("dropping analytics event of unknown type", "type", e.Type)
		}
		return nil
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:   a.total,
		SearchesByOp:    make(map[string]int64, len(a.byOp)),
		CacheHits:       a.cacheHits,
		ZeroResultCount: a.zeroResults,
		Reindexes:       a.reindexes,
	}
	for op, n := range a.byOp {
		stats.SearchesByOp[op] = n
	}
	if a.lastReindex != nil {
		r := *a.lastReindex
		stats.LastReindex = &r
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queries, 10)
	stats.ZeroResultQueries = topN(a.zeroQueries, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []float64, pct int) float64 {
	idx := min(pct*len(sorted)/100, len(sorted)-1)
	return sorted[idx]
}

// topN orders by count, then query text, so equal counts are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
