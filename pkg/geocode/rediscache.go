package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache shares reverse geocode results across processes. Redis errors
// are logged and treated as misses.
type RedisCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisCache creates a RedisCache. A non-positive ttl defaults to one hour.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*ReverseResult, bool) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		zap.L().Warn("geocode redis cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var r ReverseResult
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		zap.L().Warn("geocode redis cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &r, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, result *ReverseResult) {
	if result == nil {
		return
	}
	b, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, string(b), c.ttl).Err(); err != nil {
		zap.L().Warn("geocode redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}
