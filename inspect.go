package hycache

import (
	"context"
	"strings"
	"time"

	"github.com/unkn0wn-root/hycache/internal/keyname"
)

// Exists reports whether key is present in either tier. A LocalStore hit
// short-circuits the check; a LocalStore miss falls through to a
// distributed EXISTS.
func (hc *HybridCache) Exists(ctx context.Context, key string) (bool, error) {
	scoped, err := hc.scope(key)
	if err != nil {
		return false, err
	}
	if _, ok := hc.local.Get(ctx, scoped); ok {
		return true, nil
	}
	if !hc.redisEnabled {
		return false, nil
	}
	ok, err := hc.rx.KeyExists(ctx, scoped)
	if err != nil {
		return false, hc.wrapDistributed("Exists", scoped, err)
	}
	return ok, nil
}

// GetExpiration returns key's remaining TTL on the distributed tier.
// ok is false if the key does not exist or has no TTL.
func (hc *HybridCache) GetExpiration(ctx context.Context, key string) (time.Duration, bool, error) {
	scoped, err := hc.scope(key)
	if err != nil {
		return 0, false, err
	}
	if !hc.redisEnabled {
		return 0, false, nil
	}
	ttl, ok, err := hc.rx.KeyExpireTime(ctx, scoped)
	if err != nil {
		return 0, false, hc.wrapDistributed("GetExpiration", scoped, err)
	}
	return ttl, ok, nil
}

// Keys enumerates every key matching globPattern (scoped under this
// cache's namespace automatically), calling visit once per match with
// the caller's original, unscoped key.
func (hc *HybridCache) Keys(ctx context.Context, globPattern string, visit func(key string) error) error {
	if !hc.redisEnabled {
		return nil
	}
	scopedPattern, err := hc.scope(globPattern)
	if err != nil {
		return err
	}
	return hc.pat.Keys(ctx, scopedPattern, func(scopedKey string) error {
		if unscoped, ok := keyname.Unscope(hc.namespace, scopedKey); ok {
			return visit(unscoped)
		}
		return visit(scopedKey)
	})
}

// DatabaseSize returns the number of keys in the Redis database the
// distributed tier is connected to (not scoped to this cache's
// namespace - it is whatever DBSIZE reports for the whole database).
// Requires Options.AllowAdmin.
func (hc *HybridCache) DatabaseSize(ctx context.Context) (int64, error) {
	if !hc.opts.AllowAdmin {
		return 0, ErrAdminDisabled
	}
	if !hc.redisEnabled {
		return 0, ErrCacheClosed
	}
	n, err := hc.rx.DBSize(ctx)
	if err != nil {
		return 0, hc.wrapDistributed("DatabaseSize", "", err)
	}
	return n, nil
}

// Ping measures round-trip latency to the distributed tier.
func (hc *HybridCache) Ping(ctx context.Context) (time.Duration, error) {
	if !hc.redisEnabled {
		return 0, ErrCacheClosed
	}
	d, err := hc.rx.Ping(ctx)
	if err != nil {
		return 0, hc.wrapDistributed("Ping", "", err)
	}
	return d, nil
}

// Time returns the distributed tier's server-side clock.
func (hc *HybridCache) Time(ctx context.Context) (time.Time, error) {
	if !hc.redisEnabled {
		return time.Time{}, ErrCacheClosed
	}
	t, err := hc.rx.Time(ctx)
	if err != nil {
		return time.Time{}, hc.wrapDistributed("Time", "", err)
	}
	return t, nil
}

// Echo round-trips msg off the distributed tier, for connectivity checks
// that want to exercise the full request/response path rather than just
// PING.
func (hc *HybridCache) Echo(ctx context.Context, msg string) (string, error) {
	if !hc.redisEnabled {
		return "", ErrCacheClosed
	}
	out, err := hc.rx.Echo(ctx, msg)
	if err != nil {
		return "", hc.wrapDistributed("Echo", "", err)
	}
	return out, nil
}

// ServerVersion parses the redis_version field out of INFO SERVER.
func (hc *HybridCache) ServerVersion(ctx context.Context) (string, error) {
	if !hc.redisEnabled {
		return "", ErrCacheClosed
	}
	info, err := hc.rx.Raw().Info(ctx, "server").Result()
	if err != nil {
		return "", hc.wrapDistributed("ServerVersion", "", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if v, ok := strings.CutPrefix(line, "redis_version:"); ok {
			return v, nil
		}
	}
	return "", &ProtocolError{Op: "ServerVersion", Err: ErrNotFound}
}

// ServerFeatures reports a handful of INFO fields useful for deciding
// whether a feature this client depends on (e.g. cluster mode) is
// available on the connected server.
func (hc *HybridCache) ServerFeatures(ctx context.Context) (map[string]string, error) {
	if !hc.redisEnabled {
		return nil, ErrCacheClosed
	}
	info, err := hc.rx.Raw().Info(ctx).Result()
	if err != nil {
		return nil, hc.wrapDistributed("ServerFeatures", "", err)
	}
	features := make(map[string]string)
	for _, line := range strings.Split(info, "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		features[k] = v
	}
	return features, nil
}
