// Package hycache implements a hybrid two-tier cache: a process-local
// in-memory tier backed by a shared Redis-compatible distributed tier,
// kept coherent across cooperating process instances via a pub/sub
// invalidation bus.
//
// Components:
//   - local.Store: bounded in-process tier (Ristretto by default).
//   - redisx.Client: thin command-level facade over go-redis.
//   - invalidate.Bus: publishes and receives cross-instance invalidation
//     notices, with self-loopback suppression.
//   - expiry.Resolve: bounds local TTL by the remote key's remaining TTL.
//   - lock.Manager: token-owned distributed locks.
//   - pattern.Engine: cursor-based key enumeration and batched deletion.
//
// Keys:
//
//	<namespace>:<key>        - cached values (local store and Redis)
//	lock:<namespace>:<key>   - distributed lock records
//	<namespace>:invalidate   - pub/sub invalidation channel
//
// The cache is eventually consistent across instances: after a Set or
// Remove completes on one instance, there is a bounded window after
// which other instances' local tiers stop serving the old value.
package hycache
