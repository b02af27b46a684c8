// Package analytics collects search events, ships them over Kafka, and
// aggregates them into query statistics.
package analytics

import "time"

type EventType string

const (
	EventSearch  EventType = "search"
	EventReindex EventType = "reindex"
)

// Event is the envelope published on the analytics topic. Exactly one of
// Search or Reindex is set, matching Type.
type Event struct {
	Type    EventType     `json:"type"`
	Search  *SearchEvent  `json:"search,omitempty"`
	Reindex *ReindexEvent `json:"reindex,omitempty"`
}

type SearchEvent struct {
	Operation string    `json:"operation"`
	Query     string    `json:"query"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type ReindexEvent struct {
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Tracker accepts events without blocking the caller.
type Tracker interface {
	TrackSearch(SearchEvent)
	TrackReindex(ReindexEvent)
}
