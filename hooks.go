package hycache

// Hooks are lightweight callbacks for high-signal events. Implementations
// MUST be cheap and non-blocking; the cache calls them on hot paths. Wrap
// a Hooks implementation with hooks/async for anything that isn't.
type Hooks interface {
	// A LocalStore entry was dropped because the bus received an
	// invalidation notice from a peer instance.
	LocalInvalidated(scopedKey string)

	// A read-through populated LocalStore from Redis.
	LocalPopulated(scopedKey string)

	// The InvalidationBus publish failed and is about to retry.
	BusPublishRetried(attempt int, err error)

	// The InvalidationBus exhausted BusRetryCount and the failure was
	// either surfaced or swallowed, per ThrowIfDistributedCacheError.
	BusPublishFailed(keys []string, swallowed bool, err error)

	// The underlying transport's pub/sub connection reconnected.
	BusReconnected(flushedLocal bool)

	// A distributed lock acquisition attempt found the lock already held.
	LockContended(scopedKey string)

	// RemoveByPattern finished; called once per call with the batch size
	// used for each DEL and the total number of keys removed.
	PatternBatchDeleted(pattern string, batchSize, removed int)
}

// NopHooks is the default no-op Hooks.
type NopHooks struct{}

func (NopHooks) LocalInvalidated(string)               {}
func (NopHooks) LocalPopulated(string)                 {}
func (NopHooks) BusPublishRetried(int, error)          {}
func (NopHooks) BusPublishFailed([]string, bool, error) {}
func (NopHooks) BusReconnected(bool)                   {}
func (NopHooks) LockContended(string)                  {}
func (NopHooks) PatternBatchDeleted(string, int, int)  {}
