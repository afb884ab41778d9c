package cache

import (
	"log/slog"
	"sync"
	"time"
)

// entry is a cached value with its expiration time
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a thread-safe map whose entries expire after ttl.
// With sliding expiration a successful Get pushes the deadline forward.
type TTLCache[V any] struct {
	name          string
	items         map[string]*entry[V]
	mutex         sync.RWMutex
	ttl           time.Duration
	sliding       bool
	onEvict       func(key string, value V)
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// Option configures a TTLCache
type Option[V any] func(*TTLCache[V])

// WithSlidingExpiration refreshes an entry's deadline on every hit
func WithSlidingExpiration[V any]() Option[V] {
	return func(c *TTLCache[V]) { c.sliding = true }
}

// WithEvictionCallback is called, outside the cache lock, for every expired or deleted entry
func WithEvictionCallback[V any](fn func(key string, value V)) Option[V] {
	return func(c *TTLCache[V]) { c.onEvict = fn }
}

// WithClock replaces time.Now, for tests
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *TTLCache[V]) { c.now = now }
}

// NewTTLCache creates a cache; a positive cleanupInterval starts the background sweeper
func NewTTLCache[V any](name string, ttl, cleanupInterval time.Duration, opts ...Option[V]) *TTLCache[V] {
	c := &TTLCache[V]{
		name:        name,
		items:       make(map[string]*entry[V]),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cleanupInterval > 0 {
		c.cleanupTicker = time.NewTicker(cleanupInterval)
		go c.cleanupExpiredEntries()
	}

	slog.Info("TTL cache initialized",
		"cache", name,
		"ttl", ttl.String(),
		"sliding", c.sliding,
		"cleanup_interval", cleanupInterval.String())

	return c
}

// Set stores a value with a fresh deadline
func (c *TTLCache[V]) Set(key string, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	expiresAt := c.now().Add(c.ttl)
	c.items[key] = &entry[V]{value: value, expiresAt: expiresAt}

	slog.Debug("Cache entry set",
		"cache", c.name,
		"key", key,
		"expires_at", expiresAt.Format(time.RFC3339))
}

// Get returns the value if present and not expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V

	if c.sliding {
		c.mutex.Lock()
		defer c.mutex.Unlock()
	} else {
		c.mutex.RLock()
		defer c.mutex.RUnlock()
	}

	e, exists := c.items[key]
	if !exists {
		return zero, false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		slog.Debug("Cache entry expired", "cache", c.name, "key", key)
		return zero, false
	}

	if c.sliding {
		e.expiresAt = now.Add(c.ttl)
	}
	return e.value, true
}

// Delete removes a key and reports whether it was present
func (c *TTLCache[V]) Delete(key string) bool {
	c.mutex.Lock()
	e, exists := c.items[key]
	delete(c.items, key)
	c.mutex.Unlock()

	if exists && c.onEvict != nil {
		c.onEvict(key, e.value)
	}
	return exists
}

// ActiveSize returns the number of non-expired entries
func (c *TTLCache[V]) ActiveSize() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	now := c.now()
	active := 0
	for _, e := range c.items {
		if !now.After(e.expiresAt) {
			active++
		}
	}
	return active
}

// Stop stops the cleanup goroutine
func (c *TTLCache[V]) Stop() {
	c.stopOnce.Do(func() {
		if c.cleanupTicker != nil {
			c.cleanupTicker.Stop()
		}
		close(c.stopCleanup)
		slog.Info("TTL cache stopped", "cache", c.name)
	})
}

func (c *TTLCache[V]) cleanupExpiredEntries() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.PurgeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

// PurgeExpired removes expired entries and returns how many were dropped
func (c *TTLCache[V]) PurgeExpired() int {
	c.mutex.Lock()
	now := c.now()
	expired := make(map[string]V)
	for key, e := range c.items {
		if now.After(e.expiresAt) {
			expired[key] = e.value
			delete(c.items, key)
		}
	}
	remaining := len(c.items)
	c.mutex.Unlock()

	if c.onEvict != nil {
		for key, value := range expired {
			c.onEvict(key, value)
		}
	}

	if len(expired) > 0 {
		slog.Debug("Cache cleanup completed",
			"cache", c.name,
			"expired_entries", len(expired),
			"remaining_entries", remaining)
	}
	return len(expired)
}
