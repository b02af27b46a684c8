package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotStore persists aggregated stats so they survive restarts. It
// shares the record store's database.
type SnapshotStore struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

// NewSnapshotStore wraps db. driver is "postgres" or "sqlite".
func NewSnapshotStore(db *sql.DB, driver string) *SnapshotStore {
	return &SnapshotStore{
		db:       db,
		postgres: driver == "postgres",
		logger:   slog.Default().With("component", "analytics-snapshots"),
	}
}

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	ddl := `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		data        TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL
	)`
	if s.postgres {
		ddl = `CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL
	)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating analytics_snapshots: %w", err)
	}
	return nil
}

func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	q := `INSERT INTO analytics_snapshots (data, captured_at) VALUES (?, ?)`
	if s.postgres {
		q = `INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`
	}
	if _, err := s.db.ExecContext(ctx, q, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// Latest returns the newest snapshot, or nil when none exist.
func (s *SnapshotStore) Latest(ctx context.Context) (*AggregatedStats, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &stats, nil
}

// Run saves a snapshot of agg every interval and once more when ctx ends.
func (s *SnapshotStore) Run(ctx context.Context, agg *Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(saveCtx, agg.Stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			cancel()
			return
		}
	}
}
