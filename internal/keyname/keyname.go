// Package keyname scopes user-supplied cache keys under a shared instance
// namespace. It is intentionally a thin helper with no third-party
// dependency: there is nothing a library does better than string
// concatenation here.
package keyname

import (
	"errors"
	"strings"
)

// ErrEmpty is returned by Scope when the user key is empty or
// whitespace-only.
var ErrEmpty = errors.New("keyname: key is empty")

// Scope prefixes key with namespace, producing the only form stored in
// Redis and in the local store.
func Scope(namespace, key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrEmpty
	}
	return namespace + ":" + key, nil
}

// Unscope strips namespace+":" from scoped, reporting whether scoped was
// actually namespaced.
func Unscope(namespace, scoped string) (string, bool) {
	prefix := namespace + ":"
	if !strings.HasPrefix(scoped, prefix) {
		return "", false
	}
	return scoped[len(prefix):], true
}

// LockKey returns the Redis key under which a distributed lock record for
// scopedKey is stored.
func LockKey(scopedKey string) string {
	return "lock:" + scopedKey
}

// Channel returns the pub/sub invalidation channel name for namespace.
func Channel(namespace string) string {
	return namespace + ":invalidate"
}
