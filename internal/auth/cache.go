package auth

import (
	"context"
	"sync"
	"time"

	"basemini.app/internal/obs"
)

// DefaultCacheTTL bounds how long a resolved role or permission set is reused.
const DefaultCacheTTL = 60 * time.Second

// Cache is a keyed store with expiry owned by the implementation.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
}

// loader is implemented by caches that can fill a key without racing invalidation.
type loader[V any] interface {
	Load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error)
}

type cacheItem[V any] struct {
	value   V
	expires time.Time
}

// TTLCache is an in-process Cache. A Delete issued while a Load for the same key is in
// flight prevents that Load from storing its (possibly stale) result.
type TTLCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	items   map[string]cacheItem[V]
	epoch   uint64
	dropped map[string]uint64
	loading int
	swept   time.Time
}

// NewTTLCache returns a cache whose entries live for ttl. A non-positive ttl disables
// storage entirely.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]cacheItem[V]),
		dropped: make(map[string]uint64),
	}
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *TTLCache[V]) getLocked(key string) (V, bool) {
	var zero V
	it, ok := c.items[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(it.expires) {
		delete(c.items, key)
		return zero, false
	}
	return it.value, true
}

func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *TTLCache[V]) setLocked(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	now := c.now()
	if now.Sub(c.swept) >= c.ttl {
		c.sweepLocked(now)
	}
	c.items[key] = cacheItem[V]{value: value, expires: now.Add(c.ttl)}
}

// sweepLocked evicts every expired entry. Set runs it at most once per ttl, so keys
// that are written once and never read again do not accumulate.
func (c *TTLCache[V]) sweepLocked(now time.Time) {
	for k, it := range c.items {
		if !now.Before(it.expires) {
			delete(c.items, k)
		}
	}
	c.swept = now
}

func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.epoch++
	if c.loading > 0 {
		c.dropped[key] = c.epoch
	}
}

// Load returns the cached value for key or calls fn and caches its result.
func (c *TTLCache[V]) Load(ctx context.Context, key string, fn func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	start := c.epoch
	c.loading++
	c.mu.Unlock()

	v, err := fn(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading--
	if err == nil && c.dropped[key] <= start {
		c.setLocked(key, v)
	}
	if c.loading == 0 {
		clear(c.dropped)
	}
	return v, err
}

// Len reports the number of stored entries, including expired ones not yet swept.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func cached[V any](ctx context.Context, c Cache[V], name, key string, fn func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		obs.CacheLookups.WithLabelValues(name, "hit").Inc()
		return v, nil
	}
	obs.CacheLookups.WithLabelValues(name, "miss").Inc()
	if l, ok := c.(loader[V]); ok {
		return l.Load(ctx, key, fn)
	}
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
