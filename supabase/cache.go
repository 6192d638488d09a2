package supabase

import (
	"sync"
	"time"
)

// cache provides thread-safe caching for rows read on every popup open
type cache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func newCache[T any](ttl time.Duration, now func() time.Time) *cache[T] {
	return &cache[T]{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*cacheEntry[T]),
	}
}

// get retrieves a live entry
func (c *cache[T]) get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expiresAt) {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

// put adds a value to cache
func (c *cache[T]) put(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *cache[T]) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *cache[T]) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry[T])
}
