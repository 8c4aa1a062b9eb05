// Package invalidate implements the cross-instance invalidation bus: a
// pub/sub channel that cooperating HybridCache instances use to drop
// stale LocalStore entries after a peer writes or removes a key.
//
// The wire schema is part of the cross-process contract - see doc.go.
// Every instance on a given InstancesSharedName namespace must run the
// same version of this package; a publisher and subscriber that disagree
// on the wire schema will fail to coordinate silently (the subscriber
// just never sees valid messages).
package invalidate

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/unkn0wn-root/hycache/internal/keyname"
)

// Message is the payload exchanged over the invalidation channel.
type Message struct {
	OriginInstanceID string
	Keys             []string
}

// Receiver is invoked for every key named in a Message that did not
// originate from this instance. It must be cheap and non-blocking - it
// runs on the transport's pub/sub delivery goroutine.
type Receiver func(scopedKey string)

// Hooks mirrors the subset of hycache.Hooks the bus needs, kept as a
// narrow interface so this package doesn't import the root package (it
// would create an import cycle - the root package imports invalidate).
type Hooks interface {
	LocalInvalidated(scopedKey string)
	BusPublishRetried(attempt int, err error)
	BusPublishFailed(keys []string, swallowed bool, err error)
	BusReconnected(flushedLocal bool)
}

// Logger mirrors hycache.Logger for the same reason.
type Logger interface {
	Debug(msg string, f map[string]any)
	Warn(msg string, f map[string]any)
	Error(msg string, f map[string]any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]any) {}
func (nopLogger) Warn(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}

type nopHooks struct{}

func (nopHooks) LocalInvalidated(string)               {}
func (nopHooks) BusPublishRetried(int, error)          {}
func (nopHooks) BusPublishFailed([]string, bool, error) {}
func (nopHooks) BusReconnected(bool)                   {}

// Config configures a Bus.
type Config struct {
	Client      goredis.UniversalClient
	Namespace   string
	InstanceID  string // assigned once per process by the caller
	RetryCount  int    // publish retry cap; 0 => no retries
	RetryBase   time.Duration
	ThrowOnError bool
	FlushLocalOnReconnect bool
	// RetryRateLimit, if > 0, caps publish retries per second across the
	// whole bus - a defense against saturating Redis during a partition.
	RetryRateLimit rate.Limit

	Logger Logger
	Hooks  Hooks

	// FlushLocal is called to clear the LocalStore on reconnect when
	// FlushLocalOnReconnect is set.
	FlushLocal func(ctx context.Context)
	// OnReceive is called for every key in a non-self-originated message.
	OnReceive Receiver
}

// Bus publishes and receives InvalidationMessage notices over
// <namespace>:invalidate, suppressing self-originated messages and
// reacting to pub/sub reconnection.
type Bus struct {
	rdb        goredis.UniversalClient
	namespace  string
	instanceID string
	channel    string

	retryCount   int
	retryBase    time.Duration
	throwOnError bool
	flushOnReconn bool
	limiter      *rate.Limiter

	log   Logger
	hooks Hooks

	flushLocal func(ctx context.Context)
	onReceive  Receiver

	mu     sync.Mutex
	sub    *goredis.PubSub
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Bus and immediately subscribes to the invalidation
// channel, starting the receive loop on a background goroutine.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.Client == nil {
		return nil, errors.New("invalidate: nil client")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("invalidate: namespace is required")
	}

	b := &Bus{
		rdb:           cfg.Client,
		namespace:     cfg.Namespace,
		instanceID:    cfg.InstanceID,
		channel:       keyname.Channel(cfg.Namespace),
		retryCount:    cfg.RetryCount,
		retryBase:     cfg.RetryBase,
		throwOnError:  cfg.ThrowOnError,
		flushOnReconn: cfg.FlushLocalOnReconnect,
		flushLocal:    cfg.FlushLocal,
		onReceive:     cfg.OnReceive,
	}
	if cfg.RetryBase <= 0 {
		b.retryBase = 50 * time.Millisecond
	}
	if cfg.Logger != nil {
		b.log = cfg.Logger
	} else {
		b.log = nopLogger{}
	}
	if cfg.Hooks != nil {
		b.hooks = cfg.Hooks
	} else {
		b.hooks = nopHooks{}
	}
	if cfg.RetryRateLimit > 0 {
		b.limiter = rate.NewLimiter(cfg.RetryRateLimit, 1)
	}

	b.sub = b.rdb.Subscribe(ctx, b.channel)
	if _, err := b.sub.Receive(ctx); err != nil {
		_ = b.sub.Close()
		return nil, err
	}

	b.wg.Add(1)
	go b.receiveLoop()

	return b, nil
}

// Publish sends a Message naming keys, retrying up to RetryCount times
// with linear backoff (base x attempt) on transport error. On exhaustion,
// the failure is surfaced to the caller if ThrowOnError is set, otherwise
// it is swallowed and logged.
func (b *Bus) Publish(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	msg := Message{OriginInstanceID: b.instanceID, Keys: keys}
	payload, err := encode(msg)
	if err != nil {
		return err
	}

	var lastErr error
	attempts := b.retryCount + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = b.rdb.Publish(ctx, b.channel, payload).Err()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		b.hooks.BusPublishRetried(attempt, lastErr)
		if b.limiter != nil {
			_ = b.limiter.Wait(ctx)
		}
		select {
		case <-time.After(b.retryBase * time.Duration(attempt)):
		case <-ctx.Done():
			lastErr = ctx.Err()
			goto exhausted
		}
	}
exhausted:

	b.hooks.BusPublishFailed(keys, !b.throwOnError, lastErr)
	if b.throwOnError {
		return lastErr
	}
	b.log.Warn("invalidate: publish failed, swallowed", map[string]any{"err": lastErr, "keys": len(keys)})
	return nil
}

func (b *Bus) receiveLoop() {
	defer b.wg.Done()
	ch := b.sub.Channel()
	for payload := range ch {
		b.handle(payload)
	}
}

func (b *Bus) handle(m *goredis.Message) {
	msg, err := decode([]byte(m.Payload))
	if err != nil {
		b.log.Error("invalidate: corrupt message", map[string]any{"err": err})
		return
	}
	if msg.OriginInstanceID == b.instanceID {
		return // self-loopback suppression
	}
	for _, k := range msg.Keys {
		if b.onReceive != nil {
			b.onReceive(k)
		}
		b.hooks.LocalInvalidated(k)
	}
}

// NotifyReconnect is called by the owner when the transport's pub/sub
// connection is rebuilt after a drop. If FlushLocalOnReconnect was
// configured, the entire LocalStore is cleared - messages missed while
// disconnected could otherwise leave stale entries behind indefinitely.
func (b *Bus) NotifyReconnect(ctx context.Context) {
	if b.flushOnReconn && b.flushLocal != nil {
		b.flushLocal(ctx)
	}
	b.hooks.BusReconnected(b.flushOnReconn)
}

// Close unsubscribes and releases the pub/sub connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.sub.Close()
	b.wg.Wait()
	return err
}
