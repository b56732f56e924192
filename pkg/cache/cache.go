// Package cache provides a process-local TTL cache with lazy eviction.
// Entries store an absolute expiry computed at insertion; Get evicts
// expired entries on read. There is no background sweep — callers that
// care about memory run ClearExpired periodically.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 5 * time.Minute

type entry struct {
	value  any
	expiry time.Time
}

// Cache is a mutex-guarded key/value store with per-entry expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL overrides the default entry lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source. Used by tests to simulate expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds an empty cache.
func New(options ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
	return c
}

// Get returns the stored value when present and unexpired. An expired
// entry is evicted and reported absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(item.expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return item.value, true
}

// Set stores value under key. A non-positive ttl uses the default.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiry: c.now().Add(ttl)}
}

// Delete removes one entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// ClearExpired reclaims entries whose expiry has passed. Entries still
// within TTL are untouched.
func (c *Cache) ClearExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, item := range c.entries {
		if now.After(item.expiry) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Through is a read-through helper: it returns the cached value for
// key when present, otherwise invokes fetch and caches its result for
// ttl. Fetch errors are returned as-is and nothing is cached. Writes
// elsewhere are not reflected until the TTL lapses; explicit
// invalidation is the caller's job.
func Through[T any](c *Cache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if cached, ok := c.Get(key); ok {
		if value, ok := cached.(T); ok {
			return value, nil
		}
	}
	value, err := fetch()
	if err != nil {
		return value, err
	}
	c.Set(key, value, ttl)
	return value, nil
}
