package market

import (
	"sync"
	"time"
)

// cacheFormatTag versions the cached entry layout. Bumping it invalidates
// every entry written by an older build without needing a flush.
const cacheFormatTag = "v2"

type cacheEntry[T any] struct {
	value     T
	tag       string
	fetchedAt time.Time
}

// tieredCache is a two-tier in-memory cache. Entries younger than freshTTL
// are served unconditionally; entries younger than staleTTL are served only
// as a fallback when a live fetch fails. Anything older is treated as absent.
type tieredCache[T any] struct {
	mu       sync.RWMutex
	entries  map[string]cacheEntry[T]
	freshTTL time.Duration
	staleTTL time.Duration
}

func newTieredCache[T any](freshTTL, staleTTL time.Duration) *tieredCache[T] {
	return &tieredCache[T]{
		entries:  make(map[string]cacheEntry[T]),
		freshTTL: freshTTL,
		staleTTL: staleTTL,
	}
}

// Fresh returns the entry for key if it is inside the fresh window.
func (c *tieredCache[T]) Fresh(key string, now time.Time) (T, bool) {
	return c.get(key, now, c.freshTTL)
}

// Stale returns the entry for key if it is inside the stale window.
// Used only after a live fetch has failed.
func (c *tieredCache[T]) Stale(key string, now time.Time) (T, bool) {
	return c.get(key, now, c.staleTTL)
}

func (c *tieredCache[T]) get(key string, now time.Time, ttl time.Duration) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	entry, ok := c.entries[key]
	if !ok || entry.tag != cacheFormatTag {
		return zero, false
	}
	if now.Sub(entry.fetchedAt) > ttl {
		return zero, false
	}
	return entry.value, true
}

// Put stores a freshly fetched value, evicting entries past the stale window
// opportunistically so the map does not grow without bound.
func (c *tieredCache[T]) Put(key string, value T, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) > c.staleTTL {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry[T]{value: value, tag: cacheFormatTag, fetchedAt: now}
}
