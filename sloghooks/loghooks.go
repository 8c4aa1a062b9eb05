package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/hycache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LockContentionEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	lockContentionCtr atomic.Uint64
}

var _ hycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LocalInvalidated(scopedKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("hycache.local_invalidated", "key", h.redact(scopedKey))
}

func (h *Hooks) LocalPopulated(scopedKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("hycache.local_populated", "key", h.redact(scopedKey))
}

func (h *Hooks) BusPublishRetried(attempt int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("hycache.bus_publish_retried", "attempt", attempt, "err", err)
}

func (h *Hooks) BusPublishFailed(keys []string, swallowed bool, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("hycache.bus_publish_failed",
		"keys", len(keys),
		"swallowed", swallowed,
		"err", err)
}

func (h *Hooks) BusReconnected(flushedLocal bool) {
	if h.l == nil {
		return
	}
	h.l.Info("hycache.bus_reconnected", "flushed_local", flushedLocal)
}

func (h *Hooks) LockContended(scopedKey string) {
	if h.l == nil || !sample(h.opts.LockContentionEvery, &h.lockContentionCtr) {
		return
	}
	h.l.Debug("hycache.lock_contended", "key", h.redact(scopedKey))
}

func (h *Hooks) PatternBatchDeleted(pattern string, batchSize, removed int) {
	if h.l == nil {
		return
	}
	h.l.Info("hycache.pattern_batch_deleted",
		"pattern", pattern,
		"batch_size", batchSize,
		"removed", removed)
}
