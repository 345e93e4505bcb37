package geocode

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Cache stores reverse geocode results by coordinate key.
type Cache interface {
	Get(ctx context.Context, key string) (*ReverseResult, bool)
	Set(ctx context.Context, key string, result *ReverseResult)
}

// cachePrecision is the number of decimal places kept in cache keys; five
// places is roughly one metre.
const cachePrecision = 5

// cacheKey returns the cache key for a coordinate rounded to cachePrecision.
func cacheKey(lat, lng float64) string {
	return "revgeo:" + strconv.FormatFloat(lat, 'f', cachePrecision, 64) + ":" + strconv.FormatFloat(lng, 'f', cachePrecision, 64)
}

// CachedClient serves repeat lookups from a Cache before calling next.
// Only successful lookups are cached.
type CachedClient struct {
	next  Client
	cache Cache
}

// NewCachedClient wraps next with cache.
func NewCachedClient(next Client, cache Cache) *CachedClient {
	return &CachedClient{next: next, cache: cache}
}

// ReverseGeocode implements Client.
func (c *CachedClient) ReverseGeocode(ctx context.Context, lat, lng float64) (*ReverseResult, error) {
	key := cacheKey(lat, lng)
	if r, ok := c.cache.Get(ctx, key); ok {
		zap.L().Debug("geocode cache hit", zap.String("key", key))
		return r, nil
	}

	r, err := c.next.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	c.cache.Set(ctx, key, r)
	return r, nil
}

// MemoryCache is a concurrent-safe LRU cache with TTL expiration.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type memoryEntry struct {
	result    ReverseResult
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMemoryCache creates a MemoryCache with the given capacity and TTL.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get implements Cache. Expired entries are dropped on access.
func (c *MemoryCache) Get(_ context.Context, key string) (*ReverseResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.ttl > 0 && c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	r := entry.result
	return &r, true
}

// Set implements Cache, evicting the least recently used entry at capacity.
func (c *MemoryCache) Set(_ context.Context, key string, result *ReverseResult) {
	if result == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = &memoryEntry{result: *result, createdAt: c.now()}
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return
	}

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &memoryEntry{result: *result, createdAt: c.now()}
	c.order = append(c.order, key)
}

// Stats returns cache performance statistics.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		HitRate:    hitRate,
	}
}

func (c *MemoryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
