package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aigateway/gateway/internal/providers"
)

// MemoryCache is the default, in-process Cache implementation. A single
// mutex guards the whole map; lookup/insert/evict are atomic with respect
// to each other and never held across a network call or guardrails
// evaluation — callers re-apply guardrails to a hit's response themselves,
// outside the critical section. A background goroutine periodically sweeps
// expired entries so a cache that stops receiving lookups doesn't retain
// stale entries forever; lazy expiry on Lookup handles the common case.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	ttl     time.Duration
	now     func() int64

	done chan struct{}
}

// NewMemoryCache creates a MemoryCache with the given TTL and starts the
// background sweep loop. The loop stops when ctx is cancelled or Close is
// called.
func NewMemoryCache(ctx context.Context, ttl time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]CacheEntry),
		ttl:     ttl,
		now:     func() int64 { return time.Now().Unix() },
		done:    make(chan struct{}),
	}
	go c.sweepLoop(ctx)
	return c
}

func (c *MemoryCache) sweepLoop(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.evictExpired()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if now-v.InsertedAt >= int64(c.ttl.Seconds()) {
			delete(c.entries, k)
		}
	}
}

// Lookup implements Cache.
func (c *MemoryCache) Lookup(fingerprint string) (CacheEntry, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return CacheEntry{}, false
	}
	if now-e.InsertedAt >= int64(c.ttl.Seconds()) {
		delete(c.entries, fingerprint)
		return CacheEntry{}, false
	}
	return e, true
}

// Insert implements Cache.
func (c *MemoryCache) Insert(fingerprint string, resp providers.CanonicalResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = CacheEntry{Response: resp, InsertedAt: c.now()}
}

// Clear implements Cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Len implements Cache.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweep goroutine.
func (c *MemoryCache) Close() {
	close(c.done)
}
