package memorycache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/sharing/pkg/cache"
)

// entryOverhead approximates the bookkeeping bytes of one decision
// (list element, map slot, boxed value) on top of its key.
const entryOverhead = 100

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes bounds the approximate memory held by cached decisions.
	// The least recently used decisions are dropped beyond it.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// EnableMetrics turns on hit, miss and eviction counting.
	EnableMetrics bool
}

// Cache is a size-bounded LRU of permission decisions with per-entry expiry.
// Keys embed the grant revision, so stale decisions are never read back;
// they age out through TTL or LRU pressure.
type Cache struct {
	mu       sync.Mutex
	index    map[string]*list.Element
	recency  *list.List // front = most recently used
	used     int64
	capacity int64
	ttl      time.Duration

	counting bool
	stats    counters
}

type slot struct {
	key      string
	value    interface{}
	deadline time.Time
	cost     int64
}

type counters struct {
	hits    atomic.Uint64
	misses  atomic.Uint64
	added   atomic.Uint64
	evicted atomic.Uint64
}

// New creates a memory cache from config.
func New(config *Config) (*Cache, error) {
	switch {
	case config == nil:
		return nil, fmt.Errorf("cache config is required")
	case config.MaxSizeBytes <= 0:
		return nil, fmt.Errorf("max size must be positive, got %d", config.MaxSizeBytes)
	case config.DefaultTTL <= 0:
		return nil, fmt.Errorf("default TTL must be positive, got %s", config.DefaultTTL)
	}

	return &Cache{
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		capacity: config.MaxSizeBytes,
		ttl:      config.DefaultTTL,
		counting: config.EnableMetrics,
	}, nil
}

// Get returns the decision stored under key. A hit marks the entry as
// recently used; an expired entry is dropped and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		c.count(&c.stats.misses)
		return nil, false
	}

	s := elem.Value.(*slot)
	if time.Now().After(s.deadline) {
		c.unlink(elem)
		c.count(&c.stats.misses)
		return nil, false
	}

	c.recency.MoveToFront(elem)
	c.count(&c.stats.hits)
	return s.value, true
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	deadline := time.Now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		s := elem.Value.(*slot)
		s.value = value
		s.deadline = deadline
		c.recency.MoveToFront(elem)
		return nil
	}

	s := &slot{key: key, value: value, deadline: deadline, cost: int64(entryOverhead + len(key))}
	c.index[key] = c.recency.PushFront(s)
	c.used += s.cost
	c.count(&c.stats.added)

	c.shrink()
	return nil
}

// Delete drops key if present.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.unlink(elem)
	}
	return nil
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.index = make(map[string]*list.Element)
	c.recency.Init()
	c.used = 0
	return nil
}

// Close is a no-op; the cache holds no external resources.
func (c *Cache) Close() error {
	return nil
}

// Metrics returns a snapshot of the counters, all zero when counting is off.
func (c *Cache) Metrics() *cache.Metrics {
	if !c.counting {
		return &cache.Metrics{}
	}
	return &cache.Metrics{
		Hits:        c.stats.hits.Load(),
		Misses:      c.stats.misses.Load(),
		KeysAdded:   c.stats.added.Load(),
		KeysEvicted: c.stats.evicted.Load(),
	}
}

// ResetMetrics zeroes the counters.
func (c *Cache) ResetMetrics() {
	c.stats.hits.Store(0)
	c.stats.misses.Store(0)
	c.stats.added.Store(0)
	c.stats.evicted.Store(0)
}

// Len returns the number of cached decisions, expired ones included until touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Size returns the approximate bytes held.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// shrink drops least recently used entries until the cache fits. Caller holds mu.
func (c *Cache) shrink() {
	for c.used > c.capacity {
		oldest := c.recency.Back()
		if oldest == nil {
			return
		}
		c.unlink(oldest)
		c.count(&c.stats.evicted)
	}
}

// unlink removes elem from both indexes. Caller holds mu.
func (c *Cache) unlink(elem *list.Element) {
	s := c.recency.Remove(elem).(*slot)
	delete(c.index, s.key)
	c.used -= s.cost
}

func (c *Cache) count(counter *atomic.Uint64) {
	if c.counting {
		counter.Add(1)
	}
}
