package local

import (
	"time"

	rc "github.com/dgraph-io/ristretto"
)

// RistrettoConfig tunes the default Backend.
type RistrettoConfig struct {
	NumCounters int64 // admission sketch width; ~10x MaxItems is a good start
	MaxCost     int64 // total cost budget; 1 cost unit per entry if unset
	BufferItems int64 // Get buffer size per shard; 64 is ristretto's own default
	Metrics     bool
}

type ristrettoBackend struct {
	c *rc.Cache
}

var _ Backend = (*ristrettoBackend)(nil)

// NewRistretto builds a Ristretto-backed Backend. Ristretto already
// supports per-entry TTL and arbitrary values, so it needs no extra
// expiry bookkeeping from Store.
func NewRistretto(cfg RistrettoConfig) (Backend, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e7
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 28 // 256MiB of cost units
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoBackend{c: c}, nil
}

func (b *ristrettoBackend) Get(key string) (any, bool) {
	return b.c.Get(key)
}

func (b *ristrettoBackend) SetWithTTL(key string, value any, ttl time.Duration) bool {
	return b.c.SetWithTTL(key, value, 1, ttl)
}

func (b *ristrettoBackend) Delete(key string) {
	b.c.Del(key)
}

func (b *ristrettoBackend) Clear() {
	b.c.Clear()
}

func (b *ristrettoBackend) Close() error {
	b.c.Close()
	return nil
}
