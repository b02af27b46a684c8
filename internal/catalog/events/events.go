// Package events carries catalog changes over Kafka: reindex requests and
// product upserts flow in, index-complete notices flow out.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
)

// ReindexRequest asks the catalog service to rebuild its index from the
// record store.
type ReindexRequest struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// ProductUpserted announces a record written to the store.
type ProductUpserted struct {
	Product    catalog.Product `json:"product"`
	UpsertedAt time.Time       `json:"upsertedAt"`
}

// IndexCompleted is published after every rebuild, including partial ones.
type IndexCompleted struct {
	Reason      string    `json:"reason"`
	Indexed     int       `json:"indexed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	DurationMs  int64     `json:"durationMs"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

// Indexer is the part of searcher.Service the handlers drive.
type Indexer interface {
	IndexAll(ctx context.Context) (searcher.ReindexReport, error)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

// Handlers turns decoded events into index operations.
type Handlers struct {
	indexer   Indexer
	completed Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	lastRebuild time.Time
	rebuilds    int
	coalesced   int
}

// NewHandlers wires ix to the consumers. completed may be nil, in which case
// no index-complete notices are sent.
func NewHandlers(ix Indexer, completed Publisher) *Handlers {
	return &Handlers{
		indexer:   ix,
		completed: completed,
		logger:    slog.Default().With("component", "catalog-events"),
		now:       time.Now,
	}
}

// HandleReindex rebuilds the index for each request. A request stamped
// before the start of the last rebuild is already covered by it and is
// skipped. Partial rebuilds are reported, not retried.
func (h *Handlers) HandleReindex() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		req, err := kafka.DecodeJSON[ReindexRequest](value)
		if err != nil {
			h.logger.Error("failed to decode reindex request", "error", err, "key", string(key))
			return nil
		}
		return h.rebuild(ctx, req.Reason, req.RequestedAt)
	}
}

// HandleUpsert brings the index in line with the store after a product
// write. The index has no per-product update, so the write is picked up by a
// rebuild; a burst of upserts stamped before one rebuild started shares it.
func (h *Handlers) HandleUpsert() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		ev, err := kafka.DecodeJSON[ProductUpserted](value)
		if err != nil {
			h.logger.Error("failed to decode product upsert", "error", err, "key", string(key))
			return nil
		}
		if !ev.Product.HasID() {
			h.logger.Warn("ignoring upsert without product id", "key", string(key))
			return nil
		}
		return h.rebuild(ctx, "product upsert", ev.UpsertedAt)
	}
}

// rebuild runs IndexAll unless a rebuild that started after changedAt has
// already completed. It is detached from ctx cancellation: the rebuild
// clears the index first and must not stop halfway.
func (h *Handlers) rebuild(ctx context.Context, reason string, changedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !changedAt.IsZero() && changedAt.Before(h.lastRebuild) {
		h.coalesced++
		h.logger.Debug("change already covered by a rebuild",
			"reason", reason,
			"changed_at", changedAt,
			"last_rebuild", h.lastRebuild,
		)
		return nil
	}
	started := h.now()
	report, err := h.indexer.IndexAll(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, apperrors.ErrPartialReindex) {
		return fmt.Errorf("reindex (%s): %w", reason, err)
	}
	h.lastRebuild = started
	h.rebuilds++

	done := IndexCompleted{
		Reason:      reason,
		Indexed:     report.Indexed,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		DurationMs:  report.Duration.Milliseconds(),
		CompletedAt: h.now().UTC(),
	}
	if err != nil {
		done.Error = err.Error()
	}
	h.logger.Info("reindex finished",
		"reason", reason,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	h.notify(ctx, done)
	return nil
}

// Counts reports how many rebuilds ran and how many requests were folded
// into an earlier one.
func (h *Handlers) Counts() (rebuilds, coalesced int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rebuilds, h.coalesced
}

func (h *Handlers) notify(ctx context.Context, done IndexCompleted) {
	if h.completed == nil {
		return
	}
	if err := h.completed.Publish(ctx, kafka.Event{Key: "index", Value: done}); err != nil {
		h.logger.Error("failed to publish index-complete", "error", err)
	}
}

// RequestReindex publishes a ReindexRequest stamped with the current time.
func RequestReindex(ctx context.Context, pub Publisher, reason string) error {
	req := ReindexRequest{Reason: reason, RequestedAt: time.Now().UTC()}
	if err := pub.Publish(ctx, kafka.Event{Key: "reindex", Value: req}); err != nil {
		return fmt.Errorf("requesting reindex: %w", err)
	}
	return nil
}

// PublishUpserts announces each product, keyed by product id so updates to
// one product stay ordered.
func PublishUpserts(ctx context.Context, pub Publisher, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	now := time.Now().UTC()
	evs := make([]kafka.Event, 0, len(products))
	for _, p := range products {
		evs = append(evs, kafka.Event{
			Key:   p.ProductID,
			Value: ProductUpserted{Product: p, UpsertedAt: now},
		})
	}
	if err := pub.Publish(ctx, evs...); err != nil {
		return fmt.Errorf("publishing %d upserts: %w", len(products), err)
	}
	return nil
}
