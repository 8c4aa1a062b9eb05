package hycache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/hycache/codec"
	"github.com/unkn0wn-root/hycache/internal/keyname"
)

func newTestCache(t *testing.T, mr *miniredis.Miniredis, namespace string) *HybridCache {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	hc, err := New(context.Background(), Options{
		InstancesSharedName: namespace,
		Client:              rdb,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = hc.Close(context.Background()) })
	return hc
}

func newTestPair(t *testing.T) (*HybridCache, *HybridCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	a := newTestCache(t, mr, "app")
	b := newTestCache(t, mr, "app")
	return a, b, mr
}

type testUser struct {
	ID   string
	Name string
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	ok, err := Set(ctx, a, "u1", testUser{ID: "1", Name: "ada"}, defaultEntryOptions())
	require.NoError(t, err)
	require.True(t, ok)

	got, err := Get[testUser](ctx, a, "u1")
	require.NoError(t, err)
	require.Equal(t, testUser{ID: "1", Name: "ada"}, got)
}

func TestGetMissingKeyReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	_, err := Get[testUser](ctx, a, "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTryGetMissingKeyReturnsFalse(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	_, ok, err := TryGet[testUser](ctx, a, "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

// S1/S3-style scenario: instance A writes, instance B's LocalStore picks
// up the remote value on first read and drops it once A invalidates it.
func TestCrossInstanceReadThroughAndInvalidation(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestPair(t)

	_, err := Set(ctx, a, "k1", testUser{ID: "1", Name: "ada"}, defaultEntryOptions())
	require.NoError(t, err)

	got, err := Get[testUser](ctx, b, "k1")
	require.NoError(t, err)
	require.Equal(t, testUser{ID: "1", Name: "ada"}, got)

	scoped, err := b.scope("k1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := b.local.Get(ctx, scoped)
		return ok
	}, time.Second, 5*time.Millisecond, "b's LocalStore should be populated by the read-through")

	_, err = Set(ctx, a, "k1", testUser{ID: "1", Name: "grace"}, defaultEntryOptions())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := b.local.Get(ctx, scoped)
		return !ok
	}, time.Second, 5*time.Millisecond, "b's LocalStore entry should be invalidated after a's write")

	got, err = Get[testUser](ctx, b, "k1")
	require.NoError(t, err)
	require.Equal(t, testUser{ID: "1", Name: "grace"}, got)
}

func TestLocalTTLBoundedByRemoteTTL(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestPair(t)

	eo := defaultEntryOptions()
	eo.RedisExpiry = 50 * time.Millisecond
	_, err := Set(ctx, a, "k1", testUser{ID: "1"}, eo)
	require.NoError(t, err)

	_, err = Get[testUser](ctx, b, "k1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	scoped, err := b.scope("k1")
	require.NoError(t, err)
	_, ok := b.local.Get(ctx, scoped)
	require.False(t, ok, "b's local copy must not outlive the remote key's TTL")
}

func TestConditionalSetIfNotExists(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	eo := defaultEntryOptions()
	eo.When = IfNotExists

	ok, err := Set(ctx, a, "k1", testUser{ID: "1"}, eo)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Set(ctx, a, "k1", testUser{ID: "2"}, eo)
	require.NoError(t, err)
	require.False(t, ok, "a second IfNotExists write must not take effect")

	got, err := Get[testUser](ctx, a, "k1")
	require.NoError(t, err)
	require.Equal(t, "1", got.ID)
}

func TestRemoveIsIdempotentAndPropagates(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestPair(t)

	_, err := Set(ctx, a, "k1", testUser{ID: "1"}, defaultEntryOptions())
	require.NoError(t, err)
	_, err = Get[testUser](ctx, b, "k1")
	require.NoError(t, err)

	require.NoError(t, a.Remove(ctx, "k1"))
	require.NoError(t, a.Remove(ctx, "k1"), "removing an already-absent key must not error")

	scoped, err := b.scope("k1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := b.local.Get(ctx, scoped)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, err = Get[testUser](ctx, b, "k1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveByPatternClosureAndInvalidation(t *testing.T) {
	ctx := context.Background()
	a, b, _ := newTestPair(t)

	for i := 0; i < 3; i++ {
		_, err := Set(ctx, a, fmt.Sprintf("session:%d", i), testUser{ID: fmt.Sprint(i)}, defaultEntryOptions())
		require.NoError(t, err)
	}
	_, err := Set(ctx, a, "other", testUser{ID: "keep"}, defaultEntryOptions())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := Get[testUser](ctx, b, fmt.Sprintf("session:%d", i))
		require.NoError(t, err)
	}

	n, err := a.RemoveByPattern(ctx, "session:*", Flags{})
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	for i := 0; i < 3; i++ {
		_, err := Get[testUser](ctx, a, fmt.Sprintf("session:%d", i))
		require.ErrorIs(t, err, ErrNotFound)
	}

	got, err := Get[testUser](ctx, a, "other")
	require.NoError(t, err)
	require.Equal(t, "keep", got.ID)

	for i := 0; i < 3; i++ {
		scoped, err := b.scope(fmt.Sprintf("session:%d", i))
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			_, ok := b.local.Get(ctx, scoped)
			return !ok
		}, time.Second, 5*time.Millisecond)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	a := newTestCache(t, mr, "tenant-a")
	b := newTestCache(t, mr, "tenant-b")

	_, err = Set(ctx, a, "k1", testUser{ID: "1"}, defaultEntryOptions())
	require.NoError(t, err)

	_, err = Get[testUser](ctx, b, "k1")
	require.ErrorIs(t, err, ErrNotFound, "a key written under one namespace must not be visible under another")
}

func TestLockExclusivityAndOwnership(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	ok, err := a.TryLock(ctx, "job", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.TryLock(ctx, "job", "token-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = a.TryRelease(ctx, "job", "token-b")
	require.NoError(t, err)
	require.False(t, ok, "releasing with the wrong token must not release the lock")

	ok, err = a.TryRelease(ctx, "job", "token-a")
	require.NoError(t, err)
	require.True(t, ok)
}

// Documented policy: nothing in this module stops an ordinary write from
// clobbering a lock record's Redis key - LockManager's safety comes
// entirely from the compare-and-set/compare-and-delete Lua scripts
// checking the stored token, not from any write-protection on the key
// itself.
func TestDirectWriteOverwritesLockValue(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	ok, err := a.TryLock(ctx, "job", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.rx.StringSet(ctx, "lock:app:job", []byte("clobbered"), time.Minute, redisCondition(Always), false, redisFlags(Flags{}))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.TryRelease(ctx, "job", "token-a")
	require.NoError(t, err)
	require.False(t, ok, "the lock record's value was overwritten, so the original token no longer matches")
}

func TestGetOrCreateCallsProducerOnceOnMiss(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	var calls atomic.Int32
	produce := func(ctx context.Context) (testUser, error) {
		calls.Add(1)
		return testUser{ID: "1", Name: "ada"}, nil
	}

	got, err := GetOrCreate(ctx, a, "k1", defaultEntryOptions(), produce)
	require.NoError(t, err)
	require.Equal(t, "ada", got.Name)

	got, err = GetOrCreate(ctx, a, "k1", defaultEntryOptions(), produce)
	require.NoError(t, err)
	require.Equal(t, "ada", got.Name)
	require.EqualValues(t, 1, calls.Load())
}

func TestGetAnySetAnyPreserveConcreteType(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	reg := codec.NewTyped().Register("testUser", testUser{})

	a, err := New(ctx, Options{InstancesSharedName: "app", Client: rdb, TypeRegistry: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	ok, err := a.SetAny(ctx, "k1", testUser{ID: "1", Name: "ada"}, defaultEntryOptions())
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := a.GetAny(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testUser{ID: "1", Name: "ada"}, got)
}

func TestSetAllWritesEveryEntry(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	items := map[string]testUser{
		"k1": {ID: "1"},
		"k2": {ID: "2"},
	}
	err := SetAll(ctx, a, items, defaultEntryOptions())
	require.NoError(t, err)

	for k := range items {
		_, err := Get[testUser](ctx, a, k)
		require.NoError(t, err)
	}
}

// SetAll writing N keys must fire exactly one InvalidationMessage naming
// all of them, not one message per key.
func TestSetAllPublishesOneConsolidatedMessage(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	a := newTestCache(t, mr, "app")

	sub := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })
	ps := sub.Subscribe(ctx, keyname.Channel("app"))
	t.Cleanup(func() { _ = ps.Close() })
	_, err = ps.Receive(ctx)
	require.NoError(t, err)
	ch := ps.Channel()

	items := map[string]testUser{
		"k1": {ID: "1"},
		"k2": {ID: "2"},
		"k3": {ID: "3"},
	}
	require.NoError(t, SetAll(ctx, a, items, defaultEntryOptions()))

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invalidation message")
	}

	select {
	case msg := <-ch:
		t.Fatalf("expected exactly one invalidation message, got a second: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSetGetRoundTripWithJSONCodec(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	hc, err := New(ctx, Options{
		InstancesSharedName: "app",
		Client:              rdb,
		Codec:               codec.JSONAny{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = hc.Close(ctx) })

	ok, err := Set(ctx, hc, "u1", testUser{ID: "1", Name: "ada"}, defaultEntryOptions())
	require.NoError(t, err)
	require.True(t, ok)

	got, err := Get[testUser](ctx, hc, "u1")
	require.NoError(t, err)
	require.Equal(t, testUser{ID: "1", Name: "ada"}, got)
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestPair(t)

	_, _ = Get[testUser](ctx, a, "absent")
	_, err := Set(ctx, a, "k1", testUser{ID: "1"}, defaultEntryOptions())
	require.NoError(t, err)

	scoped, err := a.scope("k1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := a.local.Get(ctx, scoped)
		return ok
	}, time.Second, 5*time.Millisecond)

	_, err = Get[testUser](ctx, a, "k1")
	require.NoError(t, err)

	s := a.Stats()
	require.GreaterOrEqual(t, s.LocalMisses, uint64(1))
	require.GreaterOrEqual(t, s.LocalHits, uint64(1))
}
