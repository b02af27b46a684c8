package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/sqlite"
)

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.TrackSearch(SearchEvent{Operation: "supplier", Query: "S1", TotalHits: 3, LatencyMs: 1})
	a.TrackSearch(SearchEvent{Operation: "supplier", Query: "S1", TotalHits: 3, LatencyMs: 3, CacheHit: true})
	a.TrackSearch(SearchEvent{Operation: "search", Query: "nothing", TotalHits: 0, LatencyMs: 2})
	a.TrackReindex(ReindexEvent{Indexed: 10})

	st := a.Stats()
	assert.Equal(t, int64(3), st.TotalSearches)
	assert.Equal(t, int64(2), st.SearchesByOp["supplier"])
	assert.Equal(t, int64(1), st.CacheHits)
	assert.Equal(t, int64(1), st.ZeroResultCount)
	assert.InDelta(t, 2.0, st.AvgLatencyMs, 1e-9)
	assert.Equal(t, 2.0, st.P50LatencyMs)
	require.NotEmpty(t, st.TopQueries)
	assert.Equal(t, QueryCount{Query: "S1", Count: 2}, st.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "nothing", Count: 1}}, st.ZeroResultQueries)
	assert.Equal(t, int64(1), st.Reindexes)
	require.NotNil(t, st.LastReindex)
	assert.Equal(t, 10, st.LastReindex.Indexed)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := range latencyWindow + 10 {
		a.TrackSearch(SearchEvent{Query: "q", LatencyMs: float64(i)})
	}
	assert.Len(t, a.latencies, latencyWindow)
}

func TestHandleEventDecodesEnvelope(t *testing.T) {
	a := NewAggregator()
	h := a.HandleEvent()
	data, err := json.Marshal(Event{Type: EventSearch, Search: &SearchEvent{Operation: "field", Query: "x", TotalHits: 1}})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), nil, data))
	require.NoError(t, h(context.Background(), nil, []byte("not json")))
	require.NoError(t, h(context.Background(), nil, []byte(`{"type":"other"}`)))
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestCollectorFlushesOnShutdown(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.TrackSearch(SearchEvent{Operation: "search", Query: "a"})
	c.TrackReindex(ReindexEvent{Indexed: 1})
	cancel()
	c.Wait()
	assert.Equal(t, 2, pub.count())
	assert.Zero(t, c.BufferLen())
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); c.Wait() }()
	c.Start(ctx)
	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackSearch(SearchEvent{Query: "b"})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	c := NewCollector(pub, 10, time.Hour)
	c.TrackSearch(SearchEvent{Query: "a"})
	c.flush(context.Background())
	assert.Equal(t, 1, c.BufferLen())
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	client, err := sqlite.New(context.Background(), config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewSnapshotStore(client.DB, "sqlite")
	require.NoError(t, s.EnsureSchema(context.Background()))
	latest, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)

	a := NewAggregator()
	a.TrackSearch(SearchEvent{Operation: "search", Query: "q", TotalHits: 1})
	require.NoError(t, s.Save(context.Background(), a.Stats()))
	latest, err = s.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.TotalSearches)
}
