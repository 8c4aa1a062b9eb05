package hycache

import (
	"context"

	"github.com/unkn0wn-root/hycache/pattern"
)

// Remove deletes keys from both tiers and publishes one invalidation
// notice naming all of them. Removing an absent key is not an error -
// idempotent by construction, matching LocalStore.Remove and Redis DEL.
func (hc *HybridCache) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return ErrNoKeys
	}

	scoped := make([]string, 0, len(keys))
	for _, k := range keys {
		sk, err := hc.scope(k)
		if err != nil {
			return err
		}
		scoped = append(scoped, sk)
	}

	for _, sk := range scoped {
		hc.local.Remove(ctx, sk)
	}

	if hc.redisEnabled {
		if _, err := hc.rx.KeyDelete(ctx, redisFlags(Flags{}), scoped...); err != nil {
			if wrapped := hc.wrapDistributed("Remove", "", err); wrapped != nil {
				return wrapped
			}
		}
	}

	if err := hc.publish(ctx, scoped...); err != nil {
		return &PublishError{Keys: scoped, Tries: hc.opts.BusRetryCount + 1, Err: err}
	}
	return nil
}

// RemoveByPattern deletes every key matching a glob pattern (scoped under
// this cache's namespace automatically) and publishes a consolidated
// invalidation notice for what was removed. When flags.FireAndForget is
// set, the returned count is the number of keys dispatched for deletion,
// not a confirmed-delete count.
func (hc *HybridCache) RemoveByPattern(ctx context.Context, globPattern string, flags Flags) (int64, error) {
	if !hc.redisEnabled {
		return 0, nil
	}
	scopedPattern, err := hc.scope(globPattern)
	if err != nil {
		return 0, err
	}

	pf := pattern.Flags{FireAndForget: flags.FireAndForget}
	n, err := hc.pat.RemoveByPattern(ctx, scopedPattern, hc.opts.PatternBatchSize, pf, func(ctx context.Context, keys []string) error {
		for _, k := range keys {
			hc.local.Remove(ctx, k)
		}
		return hc.publish(ctx, keys...)
	})
	if err != nil {
		return n, hc.wrapDistributed("RemoveByPattern", scopedPattern, err)
	}
	hc.opts.Hooks.PatternBatchDeleted(scopedPattern, hc.opts.PatternBatchSize, int(n))
	return n, nil
}

// ClearLocal drops every entry from this instance's LocalStore only. It
// does not touch the distributed tier and does not publish anything, so
// peer instances' LocalStore copies are unaffected.
func (hc *HybridCache) ClearLocal(ctx context.Context) {
	hc.local.Clear(ctx)
}

// ClearAll drops every key in the shared namespace from the distributed
// tier, clears this instance's LocalStore, and publishes invalidation
// notices for everything removed so peers drop their own LocalStore
// copies of the same keys. Requires Options.AllowAdmin.
func (hc *HybridCache) ClearAll(ctx context.Context) error {
	if !hc.opts.AllowAdmin {
		return ErrAdminDisabled
	}
	hc.local.Clear(ctx)
	if !hc.redisEnabled {
		return nil
	}
	scopedPattern, _ := hc.scope("*")
	_, err := hc.pat.RemoveByPattern(ctx, scopedPattern, hc.opts.PatternBatchSize, pattern.Flags{}, func(ctx context.Context, keys []string) error {
		return hc.publish(ctx, keys...)
	})
	if err != nil {
		return hc.wrapDistributed("ClearAll", scopedPattern, err)
	}
	return nil
}
