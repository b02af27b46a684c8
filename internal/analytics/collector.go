package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

// Publisher writes events to the analytics topic. *kafka.Producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Collector buffers events and publishes them in batches, when the buffer
// reaches batchSize or every flushInterval.
type Collector struct {
	pub           Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []kafka.Event
	kick   chan struct{}
	done   chan struct{}
}

func NewCollector(pub Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		pub:           pub,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		buffer:        make([]kafka.Event, 0, batchSize),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start runs the flush loop until ctx is cancelled, then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-c.kick:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "batch_size", c.batchSize, "flush_interval", c.flushInterval)
}

func (c *Collector) TrackSearch(e SearchEvent) {
	c.track(e.Operation, Event{Type: EventSearch, Search: &e})
}

func (c *Collector) TrackReindex(e ReindexEvent) {
	c.track("reindex", Event{Type: EventReindex, Reindex: &e})
}

func (c *Collector) track(key string, e Event) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: key, Value: e})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

// Wait blocks until the flush loop has exited.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.pub.Publish(ctx, batch...); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", len(c.buffer)-limit)
			c.buffer = c.buffer[len(c.buffer)-limit:]
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
