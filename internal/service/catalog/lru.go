package catalog

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// LRU is a small in-process cache with per-entry TTL. It is the first tier in
// front of the shared store. Methods are safe for concurrent use.
type LRU[V any] struct {
	mu     sync.Mutex
	cap    int
	ll     *list.List // front = most-recently used
	items  map[string]*list.Element
	now    func() time.Time
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type lruEntry[V any] struct {
	key    string
	value  V
	expiry time.Time // zero means no expiry
}

// LRUConfig groups constructor options.
type LRUConfig struct {
	Capacity int
	Now      func() time.Time
}

const defaultLRUCapacity = 1024

// NewLRU creates an LRU. A non-positive capacity falls back to 1024 entries.
func NewLRU[V any](cfg LRUConfig) *LRU[V] {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultLRUCapacity
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &LRU[V]{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   nowFn,
	}
}

// Get returns the value for key if present and not expired.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	ent := el.Value.(*lruEntry[V]) //nolint:forcetypeassert // only *lruEntry[V] is ever pushed
	if c.expired(ent) {
		c.remove(el)
		c.misses.Add(1)
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.value, true
}

// Set inserts or replaces a value. ttl <= 0 means no expiration.
func (c *LRU[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	if el, found := c.items[key]; found {
		ent := el.Value.(*lruEntry[V]) //nolint:forcetypeassert // only *lruEntry[V] is ever pushed
		ent.value, ent.expiry = value, exp
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&lruEntry[V]{key: key, value: value, expiry: exp})
	for c.ll.Len() > c.cap {
		c.remove(c.ll.Back())
		c.evicts.Add(1)
	}
}

// Delete removes key and reports whether it was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
		return true
	}
	return false
}

// Len returns the number of entries, including expired ones not yet touched.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// LRUStats is a snapshot of cache counters.
type LRUStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *LRU[V]) Stats() LRUStats {
	return LRUStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// caller must hold c.mu.
func (c *LRU[V]) expired(e *lruEntry[V]) bool {
	return !e.expiry.IsZero() && c.now().After(e.expiry)
}

// caller must hold c.mu.
func (c *LRU[V]) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry[V]).key) //nolint:forcetypeassert // only *lruEntry[V] is ever pushed
}
