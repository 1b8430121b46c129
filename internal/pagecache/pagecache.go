// Package pagecache is an optional client-side read-through cache for page
// bytes, keyed by (pathId, page index). It exists to spare a hot path from
// re-issuing an HTTP page GET on every call; it is never required for
// correctness; a pageio.Engine with no cache attached behaves exactly as
// it would have without this package.
package pagecache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is one cached page body with its expiry.
type entry struct {
	data     []byte
	expiry   time.Time
	cachedAt time.Time
}

func (e *entry) isExpired() bool {
	if e.expiry.IsZero() {
		return false
	}
	return time.Now().After(e.expiry)
}

// Key identifies one cached page.
type Key struct {
	PathID string
	Index  int64
}

// Cache is a thread-safe, size-bounded, optionally TTL'd cache of page
// bodies.
type Cache struct {
	cache *lru.Cache[Key, *entry]
	mu    sync.RWMutex

	defaultTTL time.Duration

	hits   int64
	misses int64
}

// Config configures a Cache.
type Config struct {
	// MaxSize is the maximum number of cached pages. Must be positive.
	MaxSize int
	// DefaultTTL is how long a cached page stays valid; 0 means entries
	// never expire by time and are only evicted by the LRU policy.
	DefaultTTL time.Duration
}

// New creates a page Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d", cfg.MaxSize)
	}
	c, err := lru.New[Key, *entry](cfg.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create page cache: %w", err)
	}
	return &Cache{cache: c, defaultTTL: cfg.DefaultTTL}, nil
}

// Get returns the cached page body for key, if present and not expired.
func (c *Cache) Get(key Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if e.isExpired() {
		c.cache.Remove(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.data, true
}

// Set stores data under key using the cache's default TTL.
func (c *Cache) Set(key Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expiry time.Time
	if c.defaultTTL > 0 {
		expiry = now.Add(c.defaultTTL)
	}
	c.cache.Add(key, &entry{data: data, expiry: expiry, cachedAt: now})
}

// Invalidate removes key from the cache, e.g. after a page write makes a
// cached read stale.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// Stats reports cache hit/miss counters.
type Stats struct {
	Hits   int64
	Misses int64
}

// Stats returns the cache's current hit/miss counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses}
}
