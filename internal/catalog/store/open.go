package store

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/sqlite"
)

// Open connects to the configured backend and ensures the schema exists.
func Open(ctx context.Context, cfg *config.Config) (*SQLStore, error) {
	var s *SQLStore
	switch cfg.Store.Driver {
	case "postgres":
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s = New(client.DB, Postgres)
	case "sqlite":
		client, err := sqlite.New(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		s = New(client.DB, SQLite)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.logger.Info("product store ready", "driver", cfg.Store.Driver)
	return s, nil
}
