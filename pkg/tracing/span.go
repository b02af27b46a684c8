// Package tracing records lightweight span trees through contexts. A root
// span logs its whole tree via slog when it ends, if tracing is enabled.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
)

type spanKey struct{}

var enabled atomic.Bool

// SetEnabled turns span logging on or off process-wide.
func SetEnabled(on bool) { enabled.Store(on) }

// Span is a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	root     bool
	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
}

// StartSpan opens a span under the span in ctx, or a new root span whose
// trace id is the request id (or a fresh uuid) when ctx carries none.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, StartTime: time.Now(), attrs: make(map[string]any)}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.root = true
		span.TraceID = logger.RequestID(ctx)
		if span.TraceID == "" {
			span.TraceID = uuid.NewString()
		}
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Attr returns a previously set attribute.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// End stamps the duration. Ending a root span logs the tree.
func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
	if s.root && enabled.Load() {
		s.log(0)
	}
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	slog.Debug("span", attrs...)
	for _, c := range children {
		c.log(depth + 1)
	}
}
