// Package lock implements token-owned distributed locks over Redis: a
// lock record is a string key whose value is the caller-supplied token.
// Release and extend require the stored value to match the presented
// token; otherwise they fail without modifying state (never an error -
// a token mismatch is an ordinary false return, per the source's error
// taxonomy).
package lock

import (
	"context"
	"errors"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/hycache/internal/keyname"
)

var ErrCancelled = errors.New("lock: acquisition cancelled")

// extendScript compare-and-sets the TTL only if the stored value still
// equals the presented token.
var extendScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript compare-and-deletes only if the stored value still
// equals the presented token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ContentionHook is called whenever a tryLock attempt finds the lock
// already held, including each retry inside lockKey's backoff loop.
type ContentionHook func(scopedKey string)

// Manager issues and manages token-owned locks for one namespace.
type Manager struct {
	rdb       goredis.UniversalClient
	namespace string
	onContend ContentionHook
}

func New(client goredis.UniversalClient, namespace string, onContend ContentionHook) *Manager {
	if onContend == nil {
		onContend = func(string) {}
	}
	return &Manager{rdb: client, namespace: namespace, onContend: onContend}
}

func (m *Manager) recordKey(userKey string) (string, error) {
	scoped, err := keyname.Scope(m.namespace, userKey)
	if err != nil {
		return "", err
	}
	return keyname.LockKey(scoped), nil
}

// TryLock atomically creates the lock record if absent, returning true
// iff this call created it.
func (m *Manager) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	rk, err := m.recordKey(key)
	if err != nil {
		return false, err
	}
	ok, err := m.rdb.SetNX(ctx, rk, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		m.onContend(rk)
	}
	return ok, nil
}

// TryExtend compare-and-sets the lock's TTL, succeeding only if the
// stored value still equals token.
func (m *Manager) TryExtend(ctx context.Context, key, token string, newTTL time.Duration) (bool, error) {
	rk, err := m.recordKey(key)
	if err != nil {
		return false, err
	}
	res, err := extendScript.Run(ctx, m.rdb, []string{rk}, token, newTTL.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

// TryRelease compare-and-deletes the lock record, succeeding only if the
// stored value still equals token.
func (m *Manager) TryRelease(ctx context.Context, key, token string) (bool, error) {
	rk, err := m.recordKey(key)
	if err != nil {
		return false, err
	}
	res, err := releaseScript.Run(ctx, m.rdb, []string{rk}, token).Result()
	if err != nil {
		return false, err
	}
	return toBool(res), nil
}

func toBool(res any) bool {
	switch v := res.(type) {
	case int64:
		return v != 0
	case bool:
		return v
	default:
		return false
	}
}

// Lock is a handle returned by LockKey whose Release invokes TryRelease
// with the internally-generated token.
type Lock struct {
	mgr   *Manager
	key   string
	token string
}

// Token is the opaque ownership proof held by this Lock.
func (l *Lock) Token() string { return l.token }

// Release calls TryRelease for this lock's key and token.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	return l.mgr.TryRelease(ctx, l.key, l.token)
}

// LockKeyOptions tunes LockKey's blocking-acquisition backoff.
type LockKeyOptions struct {
	TTL        time.Duration
	BaseDelay  time.Duration // default 20ms
	MaxDelay   time.Duration // default 2s
	NewToken   func() string // default: a random lowercase alphanumeric token
}

// LockKey blocks (cooperatively, honoring ctx cancellation at every
// backoff boundary) until TryLock succeeds, then returns a handle whose
// Release invokes TryRelease with the token it generated. Backoff is
// exponential with full jitter.
func (m *Manager) LockKey(ctx context.Context, key string, opts LockKeyOptions) (*Lock, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = 20 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	newToken := opts.NewToken
	if newToken == nil {
		newToken = randomToken
	}

	token := newToken()
	for attempt := 0; ; attempt++ {
		ok, err := m.TryLock(ctx, key, token, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{mgr: m, key: key, token: token}, nil
		}

		delay := backoffWithJitter(base, maxDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}
}

// With runs body while holding lock, releasing it on every exit path
// (the scoped-acquisition wrapper: Go has no destructor hook, so this
// combinator plays that role).
func With(ctx context.Context, l *Lock, body func() error) error {
	defer func() { _, _ = l.Release(ctx) }()
	return body()
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30 // avoid overflow on the shift below
	}
	d := base << attempt
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

func randomToken() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 24)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
