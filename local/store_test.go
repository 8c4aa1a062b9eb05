package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRistrettoStore(t *testing.T) *Store {
	t.Helper()
	b, err := NewRistretto(RistrettoConfig{})
	require.NoError(t, err)
	s := New(b)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s := newRistrettoStore(t)

	s.Set(ctx, "k1", "v1", time.Minute)
	// ristretto applies writes asynchronously through its internal buffer.
	require.Eventually(t, func() bool {
		v, ok := s.Get(ctx, "k1")
		return ok && v == "v1"
	}, time.Second, 5*time.Millisecond)
}

func TestStoreGetMiss(t *testing.T) {
	ctx := context.Background()
	s := newRistrettoStore(t)

	_, ok := s.Get(ctx, "absent")
	require.False(t, ok)
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newRistrettoStore(t)

	s.Remove(ctx, "never-set")
	s.Remove(ctx, "never-set")
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := newRistrettoStore(t)

	s.Set(ctx, "k1", "v1", time.Minute)
	require.Eventually(t, func() bool {
		_, ok := s.Get(ctx, "k1")
		return ok
	}, time.Second, 5*time.Millisecond)

	s.Clear(ctx)
	_, ok := s.Get(ctx, "k1")
	require.False(t, ok)
}

func TestBigCacheBackendTracksItsOwnTTL(t *testing.T) {
	ctx := context.Background()
	b, err := NewBigCache(BigCacheConfig{LifeWindow: time.Hour})
	require.NoError(t, err)
	s := New(b)
	t.Cleanup(func() { _ = s.Close() })

	s.Set(ctx, "k1", "v1", 10*time.Millisecond)
	v, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, "v1", v)

	time.Sleep(30 * time.Millisecond)
	_, ok = s.Get(ctx, "k1")
	require.False(t, ok, "entry should have expired per its own tracked absolute expiry")
}

func TestBigCacheBackendNoTTLMeansNoExpiry(t *testing.T) {
	ctx := context.Background()
	b, err := NewBigCache(BigCacheConfig{LifeWindow: time.Hour})
	require.NoError(t, err)
	s := New(b)
	t.Cleanup(func() { _ = s.Close() })

	s.Set(ctx, "k1", 7, 0)
	v, ok := s.Get(ctx, "k1")
	require.True(t, ok)
	require.Equal(t, 7, v)
}
