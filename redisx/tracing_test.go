package redisx

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// countingTracer wraps a no-op tracer and counts Start calls, so tests
// can assert a span was opened without pulling in the full SDK.
type countingTracer struct {
	oteltrace.Tracer
	starts atomic.Int64
}

func newCountingTracer() *countingTracer {
	return &countingTracer{Tracer: noop.NewTracerProvider().Tracer("hycache-test")}
}

func (c *countingTracer) Start(ctx context.Context, spanName string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	c.starts.Add(1)
	return c.Tracer.Start(ctx, spanName, opts...)
}

func newTracedTestClient(t *testing.T, tracer oteltrace.Tracer) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := New(Config{Client: rdb, Tracer: tracer})
	require.NoError(t, err)
	return c
}

func TestStringSetAndGetOpenSpansWhenTracerConfigured(t *testing.T) {
	ctx := context.Background()
	tracer := newCountingTracer()
	c := newTracedTestClient(t, tracer)

	_, err := c.StringSet(ctx, "k", []byte("v"), 0, Always, false, Flags{})
	require.NoError(t, err)
	_, _, err = c.StringGet(ctx, "k")
	require.NoError(t, err)

	require.EqualValues(t, 2, tracer.starts.Load())
}

func TestStringSetAndGetSkipSpansWhenTracerNil(t *testing.T) {
	ctx := context.Background()
	c := newTracedTestClient(t, nil)

	ok, err := c.StringSet(ctx, "k", []byte("v"), 0, Always, false, Flags{})
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := c.StringGet(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), v)
}
