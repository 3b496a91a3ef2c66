package predict

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

const redisKeyPrefix = "prediction:"

// RedisCache is an alternate cache backend for deployments where multiple
// pipeline instances should share one memoization space. Expiry is enforced
// by Redis TTLs; eviction counting is delegated to the server.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache creates a cache over an established Redis client.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached result for key, if present and unexpired.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.PredictionResult, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Redis cache read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	var result model.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Redis cache entry malformed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &result, true
}

// Set stores a result under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, result *model.PredictionResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Redis cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis cache write failed", "key", key, "error", err)
	}
}

// Clear removes all prediction entries.
func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("Redis cache delete failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Redis cache scan failed", "error", err)
	}
}

// Stats returns a snapshot of cache counters. Size is the number of
// prediction keys currently held.
func (c *RedisCache) Stats(ctx context.Context) CacheStats {
	size := 0
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		size++
	}

	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}
