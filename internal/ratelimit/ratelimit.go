// Package ratelimit keeps one token bucket per client identifier and sweeps
// buckets that have gone idle.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter grants each key up to limit requests per window, refilled
// continuously, with a burst of limit.
type Limiter struct {
	limit  int
	window time.Duration
	every  rate.Limit
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

func New(limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*client),
	}
	if limit > 0 {
		l.every = rate.Every(window / time.Duration(limit))
	}
	return l
}

// Allow consumes one token for key. A limiter with a non-positive limit
// allows everything.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.every, l.limit)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.bucket.AllowN(now, 1)
}

// RetryAfter is the whole number of seconds a rejected key should wait for
// its next token.
func (l *Limiter) RetryAfter() int {
	if l.limit <= 0 {
		return 0
	}
	secs := int(l.window.Seconds() / float64(l.limit))
	return max(secs, 1)
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, key)
}

// Run evicts idle clients every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

// evict drops clients idle for two windows; their buckets would be full
// again anyway.
func (l *Limiter) evict() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
