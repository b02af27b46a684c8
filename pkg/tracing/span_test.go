package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
)

func TestChildSpansShareTraceID(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx, root := StartSpan(ctx, "search")
	_, child := StartSpan(ctx, "execute")
	child.SetAttr("hits", 3)
	child.End()
	root.End()

	assert.Equal(t, "req-1", root.TraceID)
	assert.Equal(t, "req-1", child.TraceID)
	require.Len(t, root.Children(), 1)
	v, ok := root.Children()[0].Attr("hits")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRootWithoutRequestIDGetsTraceID(t *testing.T) {
	_, span := StartSpan(context.Background(), "op")
	assert.NotEmpty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}
