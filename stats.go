package hycache

import "sync/atomic"

// stats holds the running counters behind Stats. All fields are accessed
// only through atomic operations since reads happen concurrently with
// every cache operation.
type stats struct {
	localHits       atomic.Uint64
	localMisses     atomic.Uint64
	remoteHits      atomic.Uint64
	remoteMisses    atomic.Uint64
	invalidations   atomic.Uint64
	lockContentions atomic.Uint64
}

func (s *stats) incLocalHit()   { s.localHits.Add(1) }
func (s *stats) incLocalMiss()  { s.localMisses.Add(1) }
func (s *stats) incRemoteHit()  { s.remoteHits.Add(1) }
func (s *stats) incRemoteMiss() { s.remoteMisses.Add(1) }

// Stats is a point-in-time snapshot of a HybridCache's running counters.
type Stats struct {
	LocalHits       uint64
	LocalMisses     uint64
	RemoteHits      uint64
	RemoteMisses    uint64
	Invalidations   uint64
	LockContentions uint64
}

// Stats returns a snapshot of this instance's counters since construction.
func (hc *HybridCache) Stats() Stats {
	return Stats{
		LocalHits:       hc.stats.localHits.Load(),
		LocalMisses:     hc.stats.localMisses.Load(),
		RemoteHits:      hc.stats.remoteHits.Load(),
		RemoteMisses:    hc.stats.remoteMisses.Load(),
		Invalidations:   hc.stats.invalidations.Load(),
		LockContentions: hc.stats.lockContentions.Load(),
	}
}
