// Package sqlite opens SQLite databases through the pure-Go modernc driver.
// It backs the record store in development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
)

const memoryPath = ":memory:"

type Client struct {
	DB   *sql.DB
	path string
}

// New opens the database at cfg.Path, creating parent directories. An
// in-memory database is pinned to a single connection so every query sees
// the same data.
func New(ctx context.Context, cfg config.SQLiteConfig) (*Client, error) {
	dsn := memoryPath
	if cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		dsn = "file:" + cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if cfg.Path == memoryPath {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", cfg.Path, err)
	}
	return &Client{DB: db, path: cfg.Path}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}
