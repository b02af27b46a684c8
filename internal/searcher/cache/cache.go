// Package cache memoises search results keyed by operation, canonical query,
// limit and index generation. Results live in an in-process LRU and, when
// configured, in Redis so replicas share them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/executor"
)

const keyPrefix = "search:"

// Remote is a shared byte store. *redis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushPrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies one cacheable search. Generation pins the entry to an index
// generation, so a commit makes earlier entries unreachable.
type Key struct {
	Operation  string
	Query      string
	Limit      int
	Generation uint64
}

func (k Key) String() string {
	h := sha256.New()
	h.Write([]byte(k.Operation))
	h.Write([]byte{0})
	h.Write([]byte(k.Query))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(k.Limit)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(k.Generation, 10)))
	return keyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	LocalSize int   `json:"local_size"`
	Remote    bool  `json:"remote"`
}

type QueryCache struct {
	local  *expirable.LRU[string, *executor.SearchResult]
	remote Remote
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a cache holding up to size local entries for ttl. remote may be
// nil.
func New(size int, ttl time.Duration, remote Remote) *QueryCache {
	if size <= 0 {
		size = 1024
	}
	return &QueryCache{
		local:  expirable.NewLRU[string, *executor.SearchResult](size, nil, ttl),
		remote: remote,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get looks the key up locally, then remotely. A remote hit is copied into
// the local LRU.
func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	if res, ok := c.local.Get(k); ok {
		c.hits.Add(1)
		return res, true
	}
	if c.remote != nil {
		data, ok, err := c.remote.Get(ctx, k)
		if err != nil {
			c.logger.Warn("remote cache get failed", "key", k, "error", err)
		} else if ok {
			var res executor.SearchResult
			if err := json.Unmarshal(data, &res); err == nil {
				c.local.Add(k, &res)
				c.hits.Add(1)
				return &res, true
			}
			c.logger.Warn("discarding undecodable cache entry", "key", k, "error", err)
		}
	}
	c.misses.Add(1)
	return nil, false
}

func (c *QueryCache) Set(ctx context.Context, key Key, res *executor.SearchResult) {
	k := key.String()
	c.local.Add(k, res)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.remote.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Warn("remote cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or computes it once, even
// under concurrent callers for the same key. hit reports whether the value
// came from the cache.
func (c *QueryCache) GetOrCompute(ctx context.Context, key Key, compute func() (*executor.SearchResult, error)) (res *executor.SearchResult, hit bool, err error) {
	if res, ok := c.Get(ctx, key); ok {
		return res, true, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if res, ok := c.local.Get(key.String()); ok {
			return res, nil
		}
		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*executor.SearchResult), false, nil
}

// Invalidate drops every entry, local and remote.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	n, err := c.remote.FlushPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating remote cache: %w", err)
	}
	c.logger.Info("cache invalidated", "remote_keys_deleted", n)
	return nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		LocalSize: c.local.Len(),
		Remote:    c.remote != nil,
	}
}
