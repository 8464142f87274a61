package client

import (
	"sync"
	"time"
)

// ttlCache is a size-bounded map whose entries expire. When full, expired
// entries are dropped first, then the entry closest to expiry.
type ttlCache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	entries map[K]cacheEntry[V]
	now     func() time.Time
}

type cacheEntry[V any] struct {
	value      V
	expiration time.Time
}

func newTTLCache[K comparable, V any](maxSize int, ttl time.Duration) *ttlCache[K, V] {
	return &ttlCache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		entries: make(map[K]cacheEntry[V]),
		now:     time.Now,
	}
}

func (c *ttlCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiration) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[K, V]) put(key K, value V) {
	if c.maxSize <= 0 || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evict()
	}
	c.entries[key] = cacheEntry[V]{value: value, expiration: c.now().Add(c.ttl)}
}

func (c *ttlCache[K, V]) evict() {
	now := c.now()
	var oldest K
	var oldestExp time.Time
	first := true
	for k, e := range c.entries {
		if now.After(e.expiration) {
			delete(c.entries, k)
			continue
		}
		if first || e.expiration.Before(oldestExp) {
			oldest, oldestExp, first = k, e.expiration, false
		}
	}
	if len(c.entries) >= c.maxSize && !first {
		delete(c.entries, oldest)
	}
}

func (c *ttlCache[K, V]) remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *ttlCache[K, V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]cacheEntry[V])
}

func (c *ttlCache[K, V]) setTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

func (c *ttlCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HandleCache provides a thread-safe cache mapping paths to file handles and
// back
type HandleCache struct {
	handles *ttlCache[string, []byte]
	paths   *ttlCache[string, string]
}

// NewHandleCache creates a new file handle cache
func NewHandleCache(maxSize int, ttl time.Duration) *HandleCache {
	return &HandleCache{
		handles: newTTLCache[string, []byte](maxSize, ttl),
		paths:   newTTLCache[string, string](maxSize, ttl),
	}
}

// StorePathHandle stores a path-to-handle mapping in the cache
func (c *HandleCache) StorePathHandle(path string, handle []byte) {
	c.handles.put(path, handle)
}

// StoreHandlePath stores a handle-to-path mapping in the cache
func (c *HandleCache) StoreHandlePath(handle []byte, path string) {
	c.paths.put(string(handle), path)
}

// GetHandle retrieves a file handle for a path from the cache
func (c *HandleCache) GetHandle(path string) ([]byte, bool) {
	return c.handles.get(path)
}

// GetPath retrieves a path for a file handle from the cache
func (c *HandleCache) GetPath(handle []byte) (string, bool) {
	return c.paths.get(string(handle))
}

// Clear drops every entry
func (c *HandleCache) Clear() {
	c.handles.clear()
	c.paths.clear()
}

// SetTTL changes the lifetime of entries stored from now on
func (c *HandleCache) SetTTL(ttl time.Duration) {
	c.handles.setTTL(ttl)
	c.paths.setTTL(ttl)
}
