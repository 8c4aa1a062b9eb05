// Package asynchook wraps a hycache.Hooks implementation so that calls run
// on a small worker pool instead of inline on the cache's hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    LockContentionEvery: 10, // sample logs: ~every 10th contention
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := hycache.New(context.Background(), hycache.Options{
//	    InstancesSharedName: "app:prod",
//	    RedisConnectString:  "redis://localhost:6379/0",
//	    Hooks:               hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/hycache"
)

type Hooks struct {
	inner hycache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ hycache.Hooks = (*Hooks)(nil)

func New(inner hycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LocalInvalidated(k string) { h.try(func() { h.inner.LocalInvalidated(k) }) }
func (h *Hooks) LocalPopulated(k string)   { h.try(func() { h.inner.LocalPopulated(k) }) }
func (h *Hooks) BusPublishRetried(attempt int, err error) {
	h.try(func() { h.inner.BusPublishRetried(attempt, err) })
}
func (h *Hooks) BusPublishFailed(keys []string, swallowed bool, err error) {
	h.try(func() { h.inner.BusPublishFailed(keys, swallowed, err) })
}
func (h *Hooks) BusReconnected(flushed bool) { h.try(func() { h.inner.BusReconnected(flushed) }) }
func (h *Hooks) LockContended(k string)      { h.try(func() { h.inner.LockContended(k) }) }
func (h *Hooks) PatternBatchDeleted(pattern string, batchSize, removed int) {
	h.try(func() { h.inner.PatternBatchDeleted(pattern, batchSize, removed) })
}
