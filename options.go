package hycache

import (
	"time"

	goredis "github.com/redis/go-redis/v9"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/hycache/codec"
	"github.com/unkn0wn-root/hycache/local"
)

// Condition governs whether a Set takes effect.
type Condition int

const (
	Always Condition = iota
	IfNotExists
	IfExists
)

// Flags are routing/dispatch hints for a single operation.
type Flags struct {
	PreferMaster  bool
	DemandMaster  bool
	FireAndForget bool
}

// EntryOptions tune a single Set call. The zero value writes to neither
// tier: LocalCacheEnable and RedisCacheEnable must be set for a tier to
// be written. A LocalExpiry or RedisExpiry of 0 stores the entry in that
// tier with no TTL (DefaultExpirationTime is not applied on write). The
// zero When is Always, and KeepTTL false resets the remote TTL.
type EntryOptions struct {
	LocalExpiry      time.Duration
	RedisExpiry      time.Duration
	LocalCacheEnable bool
	RedisCacheEnable bool
	FireAndForget    bool
	KeepTTL          bool
	Flags            Flags
	When             Condition
}

// SetRedisExpiryUTCTime converts an absolute UTC time into RedisExpiry,
// a relative duration from now.
func (o EntryOptions) SetRedisExpiryUTCTime(at time.Time) EntryOptions {
	o.RedisExpiry = time.Until(at)
	return o
}

func defaultEntryOptions() EntryOptions {
	return EntryOptions{LocalCacheEnable: true, RedisCacheEnable: true}
}

// Options configures a HybridCache. InstancesSharedName is required; the
// rest have sensible defaults. Options are read-only after New returns.
type Options struct {
	// Required
	InstancesSharedName string // namespace for scoped keys and the invalidation channel

	// Connection - set exactly one of RedisConnectString or Client.
	RedisConnectString string
	Client             goredis.UniversalClient

	ThrowIfDistributedCacheError bool
	AbortOnConnectFail           bool
	ConnectRetry                 int
	ConnectionTimeout            time.Duration
	SyncTimeout                  time.Duration
	// AsyncTimeout bounds fire-and-forget dispatches once they've
	// detached from the caller's own context.
	AsyncTimeout time.Duration
	// KeepAlive sets the TCP keepalive interval on the dialer used to
	// reach Redis. Default 30s.
	KeepAlive time.Duration
	// AllowAdmin gates ClearAll (which removes every key in this cache's
	// namespace) and DatabaseSize (which counts the whole database).
	AllowAdmin bool

	FlushLocalCacheOnBusReconnection bool
	BusRetryCount                    int
	BusRetryRateLimit                rate.Limit

	DefaultExpirationTime time.Duration

	// EnableLogging gates Logger: when false, Logger is replaced with
	// NopLogger regardless of what the caller set it to.
	EnableLogging bool
	// EnableTracing gates Tracer: when false, no spans are created even
	// if Tracer is set.
	EnableTracing bool

	Logger Logger
	Hooks  Hooks

	// Tracer wraps each distributed-tier GET and SET in a span when
	// EnableTracing is true. Nil is a valid no-op value.
	Tracer oteltrace.Tracer

	// LocalBackend overrides the LocalStore backend. Defaults to
	// Ristretto sized for general-purpose hot-key caching.
	LocalBackend local.Backend

	// Codec serializes values for Get[T]/Set[T]/SetAll[T]. Defaults to
	// codec.MsgpackAny{}; swap in codec.JSONAny{} or a codec.CBORAny
	// built with codec.NewCBORAny. Unlike the monomorphic codec.Codec[V]
	// family, AnyCodec decodes via a caller-supplied pointer, which is
	// what lets one Options value serve Get[T]/Set[T] for any T.
	Codec codec.AnyCodec

	// TypeRegistry backs GetAny/SetAny's polymorphic codec. Required
	// only if the caller uses GetAny/SetAny.
	TypeRegistry *codec.Typed

	// ScanPageSize is the SCAN COUNT hint used by PatternEngine.
	// Default 1000.
	ScanPageSize int64
	// PatternBatchSize is the default batch size for RemoveByPattern.
	// Default 500.
	PatternBatchSize int
}

func (o *Options) setDefaults() {
	o.ConnectRetry = coalesce(o.ConnectRetry, 3)
	o.ConnectionTimeout = coalesce(o.ConnectionTimeout, 5*time.Second)
	o.SyncTimeout = coalesce(o.SyncTimeout, 5*time.Second)
	o.AsyncTimeout = coalesce(o.AsyncTimeout, 5*time.Second)
	o.KeepAlive = coalesce(o.KeepAlive, 30*time.Second)
	o.BusRetryCount = coalesce(o.BusRetryCount, 3)
	o.DefaultExpirationTime = coalesce(o.DefaultExpirationTime, 10*time.Minute)
	o.ScanPageSize = coalesce(o.ScanPageSize, 1000)
	o.PatternBatchSize = coalesce(o.PatternBatchSize, 500)
	if o.Logger == nil {
		o.Logger = NopLogger{}
	}
	if !o.EnableLogging {
		o.Logger = NopLogger{}
	}
	if o.Hooks == nil {
		o.Hooks = NopHooks{}
	}
	if o.Codec == nil {
		o.Codec = codec.MsgpackAny{}
	}
}
