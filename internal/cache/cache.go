// Package cache is a TTL cache with at most one in-flight fetch per key.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"liquidityPricer/internal/metrics"
)

// DefaultMaxEntries bounds the number of live entries before eviction.
const DefaultMaxEntries = 100_000

// Config controls cache sizing.
type Config struct {
	MaxEntries int64
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache stores values with per-entry expiry. Entries may be evicted before
// they expire, so callers must tolerate misses at any time.
type Cache struct {
	store   *ristretto.Cache
	flights singleflight.Group
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Cache.
func New(cfg Config, m *metrics.Metrics) (*Cache, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}
	return &Cache{
		store:   store,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Close releases the store.
func (c *Cache) Close() {
	c.store.Close()
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.store.Del(key)
}

func (c *Cache) lookup(key string) (interface{}, bool) {
	raw, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := raw.(entry)
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, value interface{}, ttl time.Duration) {
	c.store.SetWithTTL(key, entry{value: value, expiresAt: c.now().Add(ttl)}, 1, ttl)
	// make the entry visible to callers that arrive after the flight ends
	c.store.Wait()
}

// GetOrFetch returns the live value for key or calls fetch exactly once
// across concurrent callers, caching the result for ttl. Fetch errors are
// not cached; zero values are. The fetch runs detached from the caller's
// cancellation.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.lookup(key); ok {
		if typed, ok := v.(T); ok {
			c.metrics.ObserveCache(true)
			return typed, nil
		}
	}
	c.metrics.ObserveCache(false)

	flightCtx := context.WithoutCancel(ctx)
	res, err, _ := c.flights.Do(key, func() (interface{}, error) {
		if v, ok := c.lookup(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		v, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		c.set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %q holds %T", key, res)
	}
	return typed, nil
}
