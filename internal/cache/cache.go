// Package cache implements the gateway's response cache: a concurrent map
// of fingerprint -> CacheEntry, bounded only by TTL (no size cap; see
// DESIGN.md for the open-question disposition).
package cache

import (
	"github.com/aigateway/gateway/internal/providers"
)

// CacheEntry is a single cached response plus its insertion time.
type CacheEntry struct {
	Response   providers.CanonicalResponse
	InsertedAt int64
}

// Cache is the concurrent-safe store the HTTP ingress uses for cache lookups
// and inserts (the dispatcher does not touch it). Lookup/Insert/Clear are all O(1) or O(n) in entry count
// and never block on network I/O.
type Cache interface {
	// Lookup returns the entry for fingerprint if present and unexpired,
	// evicting it (and reporting a miss) if it has expired.
	Lookup(fingerprint string) (CacheEntry, bool)
	// Insert stores resp under fingerprint, overwriting any existing entry.
	Insert(fingerprint string, resp providers.CanonicalResponse)
	// Clear removes every entry. Used only by the admin surface.
	Clear()
	// Len reports the current entry count, for observability.
	Len() int
}
