package hycache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/hycache/expiry"
	"github.com/unkn0wn-root/hycache/internal/keyname"
	"github.com/unkn0wn-root/hycache/invalidate"
	"github.com/unkn0wn-root/hycache/local"
	"github.com/unkn0wn-root/hycache/lock"
	"github.com/unkn0wn-root/hycache/pattern"
	"github.com/unkn0wn-root/hycache/redisx"
)

// HybridCache composes LocalStore, the RedisClient wrapper, the
// InvalidationBus, the ExpirationResolver, LockManager, and PatternEngine
// into the public read/write/remove/inspect/locking surface described in
// the package doc.
type HybridCache struct {
	opts       Options
	namespace  string
	instanceID string

	rdb   goredis.UniversalClient
	rx    *redisx.Client
	local *local.Store
	bus   *invalidate.Bus
	locks *lock.Manager
	pat   *pattern.Engine

	redisEnabled bool // false in degraded, local-only mode
	sf           singleflight.Group

	stats stats

	closed bool
}

// New constructs a HybridCache, connects to Redis, and subscribes to the
// invalidation channel immediately. If the initial connect fails and
// AbortOnConnectFail is false, New still returns a usable instance in
// degraded, local-only mode rather than an error.
func New(ctx context.Context, opts Options) (*HybridCache, error) {
	if opts.InstancesSharedName == "" {
		return nil, fmt.Errorf("hycache: InstancesSharedName is required")
	}
	opts.setDefaults()

	hc := &HybridCache{
		opts:         opts,
		namespace:    opts.InstancesSharedName,
		instanceID:   uuid.NewString(),
		redisEnabled: true,
	}

	rdb, err := resolveClient(opts, hc)
	if err != nil {
		return nil, err
	}
	hc.rdb = rdb

	backend := opts.LocalBackend
	if backend == nil {
		backend, err = local.NewRistretto(local.RistrettoConfig{})
		if err != nil {
			return nil, fmt.Errorf("hycache: local store: %w", err)
		}
	}
	hc.local = local.New(backend)

	var tracer oteltrace.Tracer
	if opts.EnableTracing {
		tracer = opts.Tracer
	}
	rx, err := redisx.New(redisx.Config{Client: rdb, AsyncTimeout: opts.AsyncTimeout, Tracer: tracer})
	if err != nil {
		return nil, err
	}
	hc.rx = rx

	if err := hc.connect(ctx); err != nil {
		if opts.AbortOnConnectFail {
			_ = hc.local.Close()
			return nil, fmt.Errorf("hycache: initial connect failed: %w", err)
		}
		hc.redisEnabled = false
		opts.Logger.Warn("hycache: initial connect failed, degrading to local-only", Fields{"err": err})
	}

	if hc.redisEnabled {
		hc.locks = lock.New(rdb, hc.namespace, func(scopedKey string) {
			hc.stats.lockContentions.Add(1)
			hc.opts.Hooks.LockContended(scopedKey)
		})
		hc.pat = pattern.New(hc.rx).WithScanPageSize(opts.ScanPageSize).WithMaxMessageKeys(2000)

		bus, err := invalidate.New(ctx, invalidate.Config{
			Client:                rdb,
			Namespace:             hc.namespace,
			InstanceID:            hc.instanceID,
			RetryCount:            opts.BusRetryCount,
			ThrowOnError:          opts.ThrowIfDistributedCacheError,
			FlushLocalOnReconnect: opts.FlushLocalCacheOnBusReconnection,
			RetryRateLimit:        opts.BusRetryRateLimit,
			Logger:                busLogger{opts.Logger},
			Hooks:                 instanceHooks{hc},
			FlushLocal: func(ctx context.Context) {
				hc.local.Clear(ctx)
			},
			OnReceive: func(scopedKey string) {
				hc.local.Remove(context.Background(), scopedKey)
			},
		})
		if err != nil {
			if opts.AbortOnConnectFail {
				_ = hc.local.Close()
				return nil, fmt.Errorf("hycache: subscribe failed: %w", err)
			}
			hc.redisEnabled = false
			opts.Logger.Warn("hycache: subscribe failed, degrading to local-only", Fields{"err": err})
		} else {
			hc.bus = bus
		}
	}

	return hc, nil
}

// resolveClient returns opts.Client if the caller supplied one, otherwise
// builds a client from RedisConnectString. In the latter case it wires
// OnConnect to hc.bus.NotifyReconnect, so a dropped-and-restored
// connection clears LocalStore when FlushLocalCacheOnBusReconnection is
// set. hc.bus is still nil at this point (New assigns it only after the
// invalidation bus subscribes), so the hook guards against that and
// becomes live once New finishes. This wiring has no effect when the
// caller passes a pre-built opts.Client - there is no hook to attach to
// a client this code didn't construct.
func resolveClient(opts Options, hc *HybridCache) (goredis.UniversalClient, error) {
	if opts.Client != nil {
		return opts.Client, nil
	}
	if opts.RedisConnectString == "" {
		return nil, fmt.Errorf("hycache: one of RedisConnectString or Client is required")
	}
	redisOpts, err := goredis.ParseURL(opts.RedisConnectString)
	if err != nil {
		return nil, fmt.Errorf("hycache: parse RedisConnectString: %w", err)
	}
	redisOpts.MaxRetries = opts.ConnectRetry
	redisOpts.DialTimeout = opts.ConnectionTimeout
	redisOpts.ReadTimeout = opts.SyncTimeout
	redisOpts.WriteTimeout = opts.SyncTimeout
	if opts.KeepAlive > 0 {
		dialer := &net.Dialer{Timeout: opts.ConnectionTimeout, KeepAlive: opts.KeepAlive}
		redisOpts.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		}
	}
	redisOpts.OnConnect = func(ctx context.Context, cn *goredis.Conn) error {
		if hc.bus != nil {
			hc.bus.NotifyReconnect(ctx)
		}
		return nil
	}
	return goredis.NewClient(redisOpts), nil
}

// connect retries PING up to ConnectRetry times with ConnectionTimeout
// per attempt. This is a lower bound on initial-connect time, not a
// guaranteed upper bound - go-redis's own internal retry/backoff and
// OS-level TCP behavior can still exceed ConnectRetry x ConnectionTimeout.
func (hc *HybridCache) connect(ctx context.Context) error {
	var lastErr error
	attempts := hc.opts.ConnectRetry + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, hc.opts.ConnectionTimeout)
		lastErr = hc.rdb.Ping(cctx).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// Close unsubscribes, closes the transport, and drops the local store.
func (hc *HybridCache) Close(ctx context.Context) error {
	if hc.closed {
		return nil
	}
	hc.closed = true

	var firstErr error
	if hc.bus != nil {
		if err := hc.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := hc.local.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := hc.rx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// InstanceID returns the process-unique identifier this instance
// assigned itself at construction; it is the OriginInstanceID on every
// InvalidationMessage this instance publishes.
func (hc *HybridCache) InstanceID() string { return hc.instanceID }

func (hc *HybridCache) scope(key string) (string, error) {
	scoped, err := keyname.Scope(hc.namespace, key)
	if err != nil {
		return "", ErrEmptyKey
	}
	return scoped, nil
}

// publish asks the InvalidationBus to notify peers about keys, honoring
// ThrowIfDistributedCacheError. It is a no-op in degraded mode.
func (hc *HybridCache) publish(ctx context.Context, keys ...string) error {
	if !hc.redisEnabled || hc.bus == nil || len(keys) == 0 {
		return nil
	}
	return hc.bus.Publish(ctx, keys)
}

// resolveLocalTTL asks ExpirationResolver for the TTL to apply locally
// for a key just read from Redis, given its remaining remote TTL (0 if
// the key has no TTL at all).
func (hc *HybridCache) resolveLocalTTL(configuredLocal, remoteRemaining time.Duration) time.Duration {
	return expiry.Resolve(configuredLocal, remoteRemaining, hc.opts.DefaultExpirationTime)
}

type busLogger struct{ l Logger }

func (b busLogger) Debug(msg string, f map[string]any) { b.l.Debug(msg, Fields(f)) }
func (b busLogger) Warn(msg string, f map[string]any)  { b.l.Warn(msg, Fields(f)) }
func (b busLogger) Error(msg string, f map[string]any) { b.l.Error(msg, Fields(f)) }

// instanceHooks adapts hycache.Hooks to invalidate.Hooks, additionally
// maintaining this instance's Stats counters alongside whatever the
// caller's own Hooks implementation does.
type instanceHooks struct{ hc *HybridCache }

func (i instanceHooks) LocalInvalidated(k string) {
	i.hc.stats.invalidations.Add(1)
	i.hc.opts.Hooks.LocalInvalidated(k)
}
func (i instanceHooks) BusPublishRetried(attempt int, err error) {
	i.hc.opts.Hooks.BusPublishRetried(attempt, err)
}
func (i instanceHooks) BusPublishFailed(keys []string, swallowed bool, err error) {
	i.hc.opts.Hooks.BusPublishFailed(keys, swallowed, err)
}
func (i instanceHooks) BusReconnected(flushed bool) { i.hc.opts.Hooks.BusReconnected(flushed) }

func (hc *HybridCache) wrapDistributed(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if !hc.opts.ThrowIfDistributedCacheError {
		hc.opts.Logger.Warn("hycache: distributed tier error swallowed", Fields{"op": op, "key": key, "err": err})
		return nil
	}
	return &DistributedError{Op: op, Key: key, Err: err}
}
