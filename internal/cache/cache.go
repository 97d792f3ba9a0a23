// Package cache provides the in-memory TTL cache used for results of pure
// tools, and a cron-driven sweeper that evicts expired entries.
package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type item[V any] struct {
	value      V
	expiration time.Time
}

// Cache is a minimal in-memory TTL cache safe for concurrent access.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[uint64]item[V]
	now   func() time.Time
}

// New constructs an empty Cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{items: make(map[uint64]item[V]), now: time.Now}
}

// Key hashes the parts into a cache key. Parts are separated so that
// ("ab", "c") and ("a", "bc") produce different keys.
func Key(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.Write(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Set stores a value with a time-to-live for the given key.
func (c *Cache[V]) Set(key uint64, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiration: c.now().Add(ttl)}
}

// Get retrieves a non-expired value for the key, returning false if missing or expired.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(it.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache[V]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, it := range c.items {
		if now.After(it.expiration) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
