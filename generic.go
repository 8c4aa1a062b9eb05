package hycache

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/hycache/redisx"
)

// getTyped is the shared Read algorithm behind Get and TryGet: LocalStore
// lookup first, then a distributed read-through that repopulates
// LocalStore with a TTL bounded by the key's remaining remote TTL.
func getTyped[T any](ctx context.Context, hc *HybridCache, key string) (T, bool, error) {
	var zero T
	scoped, err := hc.scope(key)
	if err != nil {
		return zero, false, err
	}

	if v, ok := hc.local.Get(ctx, scoped); ok {
		hc.stats.incLocalHit()
		typed, ok := v.(T)
		if !ok {
			return zero, false, &ProtocolError{Op: "Get", Err: fmt.Errorf("local entry for %q has unexpected type %T", key, v)}
		}
		return typed, true, nil
	}
	hc.stats.incLocalMiss()

	if !hc.redisEnabled {
		return zero, false, nil
	}

	raw, ok, err := hc.rx.StringGet(ctx, scoped)
	if err != nil {
		hc.stats.incRemoteMiss()
		return zero, false, hc.wrapDistributed("Get", scoped, err)
	}
	if !ok {
		hc.stats.incRemoteMiss()
		return zero, false, nil
	}
	hc.stats.incRemoteHit()

	var val T
	if err := hc.opts.Codec.Unmarshal(raw, &val); err != nil {
		return zero, false, &ProtocolError{Op: "Get", Err: err}
	}

	remaining, _, _ := hc.rx.KeyExpireTime(ctx, scoped)
	hc.local.Set(ctx, scoped, val, hc.resolveLocalTTL(0, remaining))
	hc.opts.Hooks.LocalPopulated(scoped)

	return val, true, nil
}

// Get reads key, returning ErrNotFound if it is absent from both tiers.
func Get[T any](ctx context.Context, hc *HybridCache, key string) (T, error) {
	v, ok, err := getTyped[T](ctx, hc, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, ErrNotFound
	}
	return v, nil
}

// TryGet reads key, reporting absence as (zero, false, nil) rather than
// as ErrNotFound.
func TryGet[T any](ctx context.Context, hc *HybridCache, key string) (T, bool, error) {
	return getTyped[T](ctx, hc, key)
}

// GetOrCreate reads key, and on a miss in both tiers calls produce to
// compute the value and Sets it with eo before returning it. Concurrent
// GetOrCreate calls for the same key within one process are collapsed
// via singleflight, so a thundering herd of callers triggers produce at
// most once per process rather than once per caller.
func GetOrCreate[T any](ctx context.Context, hc *HybridCache, key string, eo EntryOptions, produce func(ctx context.Context) (T, error)) (T, error) {
	v, ok, err := getTyped[T](ctx, hc, key)
	if err != nil {
		var zero T
		return zero, err
	}
	if ok {
		return v, nil
	}

	scoped, err := hc.scope(key)
	if err != nil {
		var zero T
		return zero, err
	}

	result, err, _ := hc.sf.Do(scoped, func() (any, error) {
		// Re-check: another goroutine may have populated the cache while
		// this one was waiting to enter the singleflight group.
		if v, ok, err := getTyped[T](ctx, hc, key); err == nil && ok {
			return v, nil
		}
		created, err := produce(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := Set(ctx, hc, key, created, eo); err != nil {
			return nil, err
		}
		return created, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// setNoPublish is Set's write path with the invalidation publish step
// left to the caller, so a caller writing many keys (SetAll) can
// consolidate every successfully-written key into one invalidation
// message instead of publishing once per key.
func setNoPublish[T any](ctx context.Context, hc *HybridCache, key string, value T, eo EntryOptions) (string, bool, error) {
	scoped, err := hc.scope(key)
	if err != nil {
		return "", false, err
	}

	if eo.LocalCacheEnable {
		hc.local.Set(ctx, scoped, value, eo.LocalExpiry)
	}

	if eo.RedisCacheEnable && hc.redisEnabled {
		payload, err := hc.opts.Codec.Marshal(value)
		if err != nil {
			return scoped, false, &ProtocolError{Op: "Set", Err: err}
		}

		ok, err := hc.rx.StringSet(ctx, scoped, payload, eo.RedisExpiry, redisCondition(eo.When), eo.KeepTTL, redisFlags(eo.Flags))
		if err != nil {
			if werr := hc.wrapDistributed("Set", scoped, err); werr != nil {
				return scoped, false, werr
			}
			return scoped, true, nil
		}
		if !ok {
			if eo.LocalCacheEnable {
				hc.local.Remove(ctx, scoped)
			}
			return scoped, false, nil
		}
	}

	return scoped, true, nil
}

// Set is the Write algorithm: it writes LocalStore (if enabled), then the
// distributed tier (if enabled), then publishes an invalidation notice so
// peer instances drop any LocalStore copy of their own. ok is false only
// when a conditional write (When: IfNotExists/IfExists) did not fire; in
// that case the new value is kept in neither tier (this instance's
// LocalStore copy of the key is dropped, so the next read comes from the
// distributed tier) and no invalidation is published.
func Set[T any](ctx context.Context, hc *HybridCache, key string, value T, eo EntryOptions) (bool, error) {
	scoped, ok, err := setNoPublish(ctx, hc, key, value, eo)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := hc.publish(ctx, scoped); err != nil {
		return true, &PublishError{Keys: []string{scoped}, Tries: hc.opts.BusRetryCount + 1, Err: err}
	}
	return true, nil
}

// SetAll writes every entry in items with the same EntryOptions,
// continuing past per-entry failures and reporting all of them together
// as a *SetAllError. Entries not named in the returned error's Failed map
// were written successfully; SetAll does not roll back partial writes.
// Every key that was written successfully is named in a single
// invalidation message, rather than one message per key.
func SetAll[T any](ctx context.Context, hc *HybridCache, items map[string]T, eo EntryOptions) error {
	if items == nil {
		return ErrNilValues
	}
	failed := make(map[string]error)
	var written []string

	for key, value := range items {
		scoped, ok, err := setNoPublish(ctx, hc, key, value, eo)
		if err != nil {
			failed[key] = err
			continue
		}
		if ok {
			written = append(written, scoped)
		}
	}

	pubErr := hc.publish(ctx, written...)

	if len(failed) > 0 {
		return &SetAllError{Failed: failed}
	}

	if pubErr != nil {
		return &PublishError{Keys: written, Tries: hc.opts.BusRetryCount + 1, Err: pubErr}
	}
	return nil
}

func redisCondition(c Condition) redisx.Condition {
	switch c {
	case IfNotExists:
		return redisx.IfNotExists
	case IfExists:
		return redisx.IfExists
	default:
		return redisx.Always
	}
}

func redisFlags(f Flags) redisx.Flags {
	return redisx.Flags{PreferMaster: f.PreferMaster, DemandMaster: f.DemandMaster, FireAndForget: f.FireAndForget}
}
