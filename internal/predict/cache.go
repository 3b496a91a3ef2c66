package predict

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/LuizPaulo1002/neuramaint/internal/model"
)

// Cache memoizes recent prediction results. Implementations must be safe
// for concurrent use; entries older than their TTL are never returned.
type Cache interface {
	Get(ctx context.Context, key string) (*model.PredictionResult, bool)
	Set(ctx context.Context, key string, result *model.PredictionResult)
	Clear(ctx context.Context)
	Stats(ctx context.Context) CacheStats
}

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// CacheKey derives the memoization key from sensor id, a coarse value
// bucket (nearest 10 units) and a coarse time bucket (5-minute window).
// Readings close enough in value and time share one external call.
func CacheKey(sensorID int64, value float64, at time.Time) string {
	valueBucket := int64(math.Round(value/10) * 10)
	timeBucket := at.Unix() / 300
	return fmt.Sprintf("%d:%d:%d", sensorID, valueBucket, timeBucket)
}

// LRUCache is the default in-process cache backend: bounded size with LRU
// eviction plus per-entry TTL (lazy expiry on read, background sweep once
// the cache grows).
type LRUCache struct {
	lru       *expirable.LRU[string, *model.PredictionResult]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewLRUCache creates a cache holding at most size entries, each expiring
// after ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	c := &LRUCache{}
	c.lru = expirable.NewLRU[string, *model.PredictionResult](size, func(string, *model.PredictionResult) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

// Get returns the cached result for key, if present and unexpired.
func (c *LRUCache) Get(ctx context.Context, key string) (*model.PredictionResult, bool) {
	result, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		return result, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores a result under key.
func (c *LRUCache) Set(ctx context.Context, key string, result *model.PredictionResult) {
	c.lru.Add(key, result)
}

// Clear evicts all entries.
func (c *LRUCache) Clear(ctx context.Context) {
	c.lru.Purge()
}

// Stats returns a snapshot of cache counters.
func (c *LRUCache) Stats(ctx context.Context) CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}
