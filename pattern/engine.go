// Package pattern implements cursor-based key enumeration and batched
// deletion for glob patterns over a namespace's scoped keyspace.
package pattern

import (
	"context"

	"github.com/unkn0wn-root/hycache/redisx"
)

const defaultScanPageSize = 1000

// Flags mirrors redisx.Flags without importing that package's Condition
// variants (PatternEngine only ever deletes, never conditionally sets).
type Flags struct {
	FireAndForget bool
}

// PublishFunc is invoked once (or, for very large result sets, a few
// times - see publishInChunks) with the scoped keys that were removed,
// so the caller's InvalidationBus can broadcast a consolidated notice.
type PublishFunc func(ctx context.Context, keys []string) error

// Engine scans and removes keys by glob pattern against one Redis
// client. It delegates every actual round trip to redisx.Client, so its
// fire-and-forget deletes share that client's bounded dispatch pool
// instead of spawning their own goroutines.
type Engine struct {
	rx           *redisx.Client
	scanPageSize int64
	// maxMessageKeys bounds how many keys go into one invalidation
	// publish, so a 100k-key removal doesn't produce one oversized
	// pub/sub frame.
	maxMessageKeys int
}

func New(client *redisx.Client) *Engine {
	return &Engine{rx: client, scanPageSize: defaultScanPageSize, maxMessageKeys: 2000}
}

// WithScanPageSize overrides the SCAN COUNT hint (default 1000).
func (e *Engine) WithScanPageSize(n int64) *Engine {
	if n > 0 {
		e.scanPageSize = n
	}
	return e
}

// WithMaxMessageKeys overrides how many keys are batched into one
// invalidation publish (default 2000).
func (e *Engine) WithMaxMessageKeys(n int) *Engine {
	if n > 0 {
		e.maxMessageKeys = n
	}
	return e
}

// Keys iterates the cursor-based scan for pattern, calling visit once
// per matching scoped key. The scan is not restartable: visit returning
// an error stops iteration and that error is returned. This mirrors a
// "lazy sequence consumed once" without requiring a generator - Go has
// no language-level iterators of that shape here that are simpler than
// a callback.
func (e *Engine) Keys(ctx context.Context, pattern string, visit func(key string) error) error {
	var cursor uint64
	for {
		next, keys, err := e.rx.Scan(ctx, cursor, pattern, e.scanPageSize)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := visit(k); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// RemoveByPattern pages matching keys in groups of up to batchSize,
// issuing one multi-key DEL per page, then publishes one or more
// consolidated invalidation messages for everything removed (skipped
// when publish is nil - see RemoveByPatternOnRedisOnly).
//
// When flags.FireAndForget is set, DEL commands are dispatched without
// awaiting their acknowledgement, and the returned count is the number
// of keys *dispatched* for deletion, not a confirmed-delete count - this
// is the resolved behavior for the "accurate vs approximate" open
// question: dispatched count, always.
func (e *Engine) RemoveByPattern(ctx context.Context, pattern string, batchSize int, flags Flags, publish PublishFunc) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var removed int64
	var allRemoved []string
	var batch []string

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := e.deleteBatch(ctx, batch, flags)
		if err != nil {
			return err
		}
		removed += n
		allRemoved = append(allRemoved, batch...)
		// a fresh slice, not batch[:0]: a fire-and-forget DEL may still
		// be reading the old one on its background goroutine.
		batch = nil
		return nil
	}

	err := e.Keys(ctx, pattern, func(key string) error {
		batch = append(batch, key)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	if err := flush(); err != nil {
		return removed, err
	}

	if publish != nil && len(allRemoved) > 0 {
		if err := publishInChunks(ctx, publish, allRemoved, e.maxMessageKeys); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// RemoveByPatternOnRedisOnly is RemoveByPattern with the invalidation
// broadcast skipped entirely - used when the caller knows no local
// copies of the matched keys exist anywhere.
func (e *Engine) RemoveByPatternOnRedisOnly(ctx context.Context, pattern string, batchSize int, flags Flags) (int64, error) {
	return e.RemoveByPattern(ctx, pattern, batchSize, flags, nil)
}

func (e *Engine) deleteBatch(ctx context.Context, keys []string, flags Flags) (int64, error) {
	return e.rx.KeyDelete(ctx, redisx.Flags{FireAndForget: flags.FireAndForget}, keys...)
}

func publishInChunks(ctx context.Context, publish PublishFunc, keys []string, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(keys)
	}
	for start := 0; start < len(keys); start += chunkSize {
		end := start + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := publish(ctx, keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}
