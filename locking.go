package hycache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/hycache/lock"
)

// Lock is a handle to a distributed lock acquired via LockKey. Release
// is safe to call more than once; later
// calls after a successful release are no-ops that return false.
type Lock struct{ inner *lock.Lock }

// Token is the opaque ownership proof this instance holds for the lock.
// Extend or release attempts presenting a different token always fail.
func (l *Lock) Token() string { return l.inner.Token() }

// Release compare-and-deletes the lock record, succeeding only if this
// Lock's token still matches what's stored.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	return l.inner.Release(ctx)
}

// TryLock attempts to create a lock record for key with the given token
// and TTL, returning true iff this call created it. It never blocks.
func (hc *HybridCache) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	hc.requireLocking()
	return hc.locks.TryLock(ctx, key, token, ttl)
}

// TryExtend compare-and-sets a lock's TTL, succeeding only if token
// matches the value currently stored for key.
func (hc *HybridCache) TryExtend(ctx context.Context, key, token string, newTTL time.Duration) (bool, error) {
	hc.requireLocking()
	return hc.locks.TryExtend(ctx, key, token, newTTL)
}

// TryRelease compare-and-deletes a lock, succeeding only if token
// matches the value currently stored for key.
func (hc *HybridCache) TryRelease(ctx context.Context, key, token string) (bool, error) {
	hc.requireLocking()
	return hc.locks.TryRelease(ctx, key, token)
}

// LockKeyOptions tunes LockKey's blocking-acquisition backoff.
type LockKeyOptions struct {
	TTL       time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// LockKey blocks, retrying with exponential backoff and jitter, until it
// acquires the lock for key or ctx is cancelled. Every contended attempt
// invokes Hooks.LockContended.
func (hc *HybridCache) LockKey(ctx context.Context, key string, opts LockKeyOptions) (*Lock, error) {
	hc.requireLocking()
	l, err := hc.locks.LockKey(ctx, key, lock.LockKeyOptions{
		TTL:       opts.TTL,
		BaseDelay: opts.BaseDelay,
		MaxDelay:  opts.MaxDelay,
	})
	if err != nil {
		return nil, err
	}
	return &Lock{inner: l}, nil
}

// WithLock holds key for the duration of body, releasing it on every
// exit path including a panic inside body.
func (hc *HybridCache) WithLock(ctx context.Context, key string, opts LockKeyOptions, body func(ctx context.Context) error) error {
	l, err := hc.LockKey(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() { _, _ = l.Release(ctx) }()
	return body(ctx)
}

func (hc *HybridCache) requireLocking() {
	if hc.locks == nil {
		panic("hycache: locking is unavailable in degraded, local-only mode")
	}
}
