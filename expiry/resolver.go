// Package expiry computes the local TTL to apply to a just-read cache
// entry, bounding it by the remote key's remaining TTL. It is a pure,
// stdlib-only function - there is no third-party library for a
// three-way min, and the source spec explicitly calls this component out
// as a thin helper.
package expiry

import "time"

// Resolve returns the local TTL to apply for an entry whose configured
// local expiry is configuredLocal and whose remote key has
// remoteRemaining left before it expires (0 if the remote reply carried
// no expiry, i.e. the key has no TTL).
//
// Rule: min(configuredLocal, remoteRemaining) if both are positive, else
// whichever of the two is positive, else defaultExpiry. The result never
// outlives the remote key when the remote key has a TTL at all.
func Resolve(configuredLocal, remoteRemaining, defaultExpiry time.Duration) time.Duration {
	switch {
	case configuredLocal > 0 && remoteRemaining > 0:
		if configuredLocal < remoteRemaining {
			return configuredLocal
		}
		return remoteRemaining
	case configuredLocal > 0:
		return configuredLocal
	case remoteRemaining > 0:
		return remoteRemaining
	default:
		return defaultExpiry
	}
}
