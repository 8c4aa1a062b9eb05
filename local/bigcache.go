package local

import (
	"bytes"
	"encoding/gob"
	"reflect"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// BigCacheConfig tunes the optional byte-oriented Backend.
type BigCacheConfig struct {
	LifeWindow         time.Duration // upper bound; per-Set ttl is still tracked and enforced on Get
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

// bigcacheBackend wraps allegro/bigcache, which has no per-entry TTL of
// its own (only a single global LifeWindow). Store's lazy-expiry
// contract still needs per-entry precision, so this backend tracks
// absolute expiries itself and enforces them on Get - the same "lazy
// expiry on read" rule LocalStore's contract requires, just implemented
// here instead of relying on the backend.
type bigcacheBackend struct {
	c *bc.BigCache

	mu   sync.Mutex
	expr map[string]time.Time
}

var _ Backend = (*bigcacheBackend)(nil)

// NewBigCache builds a BigCache-backed Backend. Values are gob-encoded
// since BigCache only stores []byte and LocalStore's contract stores
// native objects.
func NewBigCache(cfg BigCacheConfig) (Backend, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &bigcacheBackend{c: c, expr: make(map[string]time.Time)}, nil
}

func (b *bigcacheBackend) Get(key string) (any, bool) {
	b.mu.Lock()
	exp, tracked := b.expr[key]
	b.mu.Unlock()
	if tracked && time.Now().After(exp) {
		b.Delete(key)
		return nil, false
	}

	raw, err := b.c.Get(key)
	if err != nil {
		return nil, false
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		b.Delete(key) // self-heal corrupt entry
		return nil, false
	}
	return v, true
}

func (b *bigcacheBackend) SetWithTTL(key string, value any, ttl time.Duration) bool {
	registerGobType(value)

	var buf bytes.Buffer
	// Encode &value, not value: gob only embeds the wire type name needed
	// to decode back into an interface{} destination when the encoded
	// value itself has interface kind, which requires encoding a pointer
	// to the interface variable rather than the unwrapped concrete value.
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return false
	}
	if err := b.c.Set(key, buf.Bytes()); err != nil {
		return false
	}

	b.mu.Lock()
	if ttl > 0 {
		b.expr[key] = time.Now().Add(ttl)
	} else {
		delete(b.expr, key)
	}
	b.mu.Unlock()
	return true
}

func (b *bigcacheBackend) Delete(key string) {
	_ = b.c.Delete(key)
	b.mu.Lock()
	delete(b.expr, key)
	b.mu.Unlock()
}

func (b *bigcacheBackend) Clear() {
	_ = b.c.Reset()
	b.mu.Lock()
	b.expr = make(map[string]time.Time)
	b.mu.Unlock()
}

func (b *bigcacheBackend) Close() error {
	return b.c.Close()
}

// gobRegistry tracks which concrete types have been handed to
// gob.Register so SetWithTTL only pays that cost once per type instead
// of once per call.
var gobRegistry sync.Map // map[reflect.Type]struct{}

func registerGobType(value any) {
	if value == nil {
		return
	}
	typ := reflect.TypeOf(value)
	if _, loaded := gobRegistry.LoadOrStore(typ, struct{}{}); !loaded {
		gob.Register(value)
	}
}
