package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	DefaultTTL     = 15 * time.Second
	DefaultMaxSize = 50 * 1024 * 1024
)

// Clock returns the current time. Tests swap it for a fake.
type Clock func() time.Time

// Sizer reports the accounted size of a value in bytes.
type Sizer[V any] func(V) int

// JSONSize accounts a value by the length of its JSON encoding.
func JSONSize[V any](v V) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}

type entry[V any] struct {
	value    V
	size     int
	storedAt time.Time
}

// Cache is a TTL cache bounded by the total accounted size of its entries.
// When the budget is exceeded the least recently used entries go first.
// Values are returned as stored; callers copy before mutating.
type Cache[V any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, entry[V]]
	ttl     time.Duration
	maxSize int
	size    int
	now     Clock
	sizer   Sizer[V]
	hits    int
	misses  int
}

type Option[V any] func(*Cache[V])

func WithClock[V any](clock Clock) Option[V] {
	return func(c *Cache[V]) { c.now = clock }
}

func WithSizer[V any](sizer Sizer[V]) Option[V] {
	return func(c *Cache[V]) { c.sizer = sizer }
}

func New[V any](ttl time.Duration, maxSize int, opts ...Option[V]) (*Cache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive")
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("max size must be positive")
	}

	c := &Cache[V]{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		sizer:   JSONSize[V],
	}
	for _, opt := range opts {
		opt(c)
	}

	// Entry count is bounded by maxSize only; every entry accounts at least one byte.
	lru, err := simplelru.NewLRU[string, entry[V]](maxSize, func(_ string, e entry[V]) {
		c.size -= e.size
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.lru = lru

	return c, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

func (c *Cache[V]) Set(key string, value V) {
	size := max(c.sizer(value), 1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.maxSize {
		slog.Warn("Cache entry exceeds size budget, not stored", "key", key, "size", size, "max_size", c.maxSize)
		c.lru.Remove(key)
		return
	}

	c.lru.Remove(key)
	c.lru.Add(key, entry[V]{value: value, size: size, storedAt: c.now()})
	c.size += size

	for c.size > c.maxSize {
		evictedKey, _, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		slog.Debug("Cache entry evicted", "key", evictedKey, "size", c.size)
	}
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Size returns the total accounted size of stored entries in bytes.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.size = 0
}

func (c *Cache[V]) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"entries":  c.lru.Len(),
		"size":     c.size,
		"max_size": c.maxSize,
		"ttl":      c.ttl.String(),
		"hits":     c.hits,
		"misses":   c.misses,
	}
}
