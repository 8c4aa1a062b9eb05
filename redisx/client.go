// Package redisx is a narrow, command-level facade over go-redis. It
// exposes exactly the operation set the hybrid cache's other components
// need and nothing more, so every call site in this module names a
// concern ("set a string with a condition") instead of a raw command.
package redisx

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ErrNilClient is returned by New when cfg.Client is nil.
var ErrNilClient = errors.New("redisx: nil client")

// Condition governs whether StringSet takes effect.
type Condition int

const (
	Always Condition = iota
	IfNotExists
	IfExists
)

// Flags are routing/dispatch hints threaded through from the caller's
// per-call options down to the transport.
type Flags struct {
	PreferMaster  bool
	DemandMaster  bool
	FireAndForget bool
}

// Client wraps a redis.UniversalClient (works against a single node, a
// sentinel-managed primary/replica set, or a cluster). PreferMaster and
// DemandMaster are accepted in Flags but not acted on: every command goes
// wherever the underlying client routes it.
type Client struct {
	rdb goredis.UniversalClient

	// faf bounds how many fire-and-forget commands may be in flight at
	// once, so a burst of FireAndForget writes can't unbound the number
	// of background goroutines.
	faf chan struct{}

	// asyncTimeout bounds how long a fire-and-forget dispatch may run on
	// its background goroutine once it has detached from the caller's ctx.
	asyncTimeout time.Duration

	// tracer wraps each round trip in a span when non-nil. Nil means
	// tracing is disabled; every call site must stay nil-safe.
	tracer oteltrace.Tracer
}

type Config struct {
	Client goredis.UniversalClient
	// FireAndForgetConcurrency bounds in-flight fire-and-forget
	// dispatches. 0 uses a sensible default.
	FireAndForgetConcurrency int
	// AsyncTimeout bounds fire-and-forget dispatches once detached from
	// the caller's context. 0 uses a sensible default.
	AsyncTimeout time.Duration
	// Tracer wraps StringGet/StringSet round trips in a span. Nil
	// disables tracing entirely.
	Tracer oteltrace.Tracer
}

func New(cfg Config) (*Client, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	concurrency := cfg.FireAndForgetConcurrency
	if concurrency <= 0 {
		concurrency = 64
	}
	asyncTimeout := cfg.AsyncTimeout
	if asyncTimeout <= 0 {
		asyncTimeout = 5 * time.Second
	}
	return &Client{
		rdb:          cfg.Client,
		faf:          make(chan struct{}, concurrency),
		asyncTimeout: asyncTimeout,
		tracer:       cfg.Tracer,
	}, nil
}

// startSpan opens a span named hycache.redis.<op> when a tracer is
// configured. The returned closer is always safe to call, even with
// tracing disabled, so call sites never need a nil check of their own.
func (c *Client) startSpan(ctx context.Context, op string) (context.Context, func()) {
	if c.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := c.tracer.Start(ctx, "hycache.redis."+op)
	return ctx, func() { span.End() }
}

// Raw exposes the underlying client for operations outside this facade's
// vocabulary, such as INFO.
func (c *Client) Raw() goredis.UniversalClient { return c.rdb }

// fireAndForget runs fn on a bounded background goroutine without
// waiting for it to complete. Errors are dropped by design - that is
// what fire-and-forget means.
func (c *Client) fireAndForget(fn func(ctx context.Context)) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.asyncTimeout)
		defer cancel()
		fn(ctx)
	}
	select {
	case c.faf <- struct{}{}:
		go func() {
			defer func() { <-c.faf }()
			run()
		}()
	default:
		// at capacity: run inline rather than unbounding goroutines
		run()
	}
}

// StringSet issues SET key value [PX ttl] [NX|XX] [KEEPTTL], returning
// whether the write took effect (false only for a conditional write that
// did not fire).
func (c *Client) StringSet(ctx context.Context, key string, value []byte, ttl time.Duration, cond Condition, keepTTL bool, flags Flags) (bool, error) {
	ctx, end := c.startSpan(ctx, "set")
	defer end()

	args := []any{"set", key, value}
	if ttl > 0 && !keepTTL {
		args = append(args, "px", ttl.Milliseconds())
	}
	if keepTTL {
		args = append(args, "keepttl")
	}
	switch cond {
	case IfNotExists:
		args = append(args, "nx")
	case IfExists:
		args = append(args, "xx")
	}

	if flags.FireAndForget {
		c.fireAndForget(func(ctx context.Context) {
			_ = c.rdb.Do(ctx, args...).Err()
		})
		return true, nil
	}

	res, err := c.rdb.Do(ctx, args...).Result()
	if errors.Is(err, goredis.Nil) {
		// NX/XX precondition not met
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res != nil, nil
}

// StringGet returns (value, true, nil) on hit, (nil, false, nil) on miss.
func (c *Client) StringGet(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, end := c.startSpan(ctx, "get")
	defer end()

	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// KeyDelete removes keys, returning the number actually removed. With
// flags.FireAndForget it returns the number of keys dispatched instead.
func (c *Client) KeyDelete(ctx context.Context, flags Flags, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	if flags.FireAndForget {
		c.fireAndForget(func(ctx context.Context) {
			_ = c.rdb.Del(ctx, keys...).Err()
		})
		return int64(len(keys)), nil
	}
	return c.rdb.Del(ctx, keys...).Result()
}

// KeyExpireTime returns the key's TTL, or (0, false, nil) if the key has
// no TTL or does not exist.
func (c *Client) KeyExpireTime(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// KeyExists reports whether key is present.
func (c *Client) KeyExists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Scan performs one SCAN round trip, returning the matching keys from
// this page and the cursor to continue from (0 means the scan is done).
func (c *Client) Scan(ctx context.Context, cursor uint64, match string, count int64) (uint64, []string, error) {
	keys, next, err := c.rdb.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return 0, nil, err
	}
	return next, keys, nil
}

// Publish publishes payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe subscribes to channel and returns the underlying PubSub
// handle; the caller owns its lifecycle (Close it when done).
func (c *Client) Subscribe(ctx context.Context, channel string) *goredis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}

// Time returns the server's current time.
func (c *Client) Time(ctx context.Context) (time.Time, error) {
	return c.rdb.Time(ctx).Result()
}

// DBSize returns the number of keys in the currently selected database.
func (c *Client) DBSize(ctx context.Context) (int64, error) {
	return c.rdb.DBSize(ctx).Result()
}

// Ping measures round-trip latency to the server.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// Echo round-trips msg off the server, primarily for connectivity checks.
func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	return c.rdb.Echo(ctx, msg).Result()
}

// Eval runs a Lua script and returns its raw result.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}

// Close releases the underlying client's resources.
func (c *Client) Close() error {
	return c.rdb.Close()
}
