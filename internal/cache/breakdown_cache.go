package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// BreakdownEntry is a cached cache-status breakdown with metadata.
type BreakdownEntry struct {
	Breakdown map[string]int64 `json:"breakdown"`
	Window    time.Duration    `json:"window"`
	CachedAt  time.Time        `json:"cached_at"`
}

// BreakdownCacheStats tracks hit/miss/set counts for the breakdown cache.
type BreakdownCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// Snapshot returns a copy of the counters safe to read concurrently.
func (s *BreakdownCacheStats) Snapshot() (hits, misses, sets int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Hits, s.Misses, s.Sets
}

// BreakdownCache is a Redis-backed cache for cache-status breakdowns. The
// underlying range queries are expensive and their results barely move
// between runs, so a miss only costs one refetch.
type BreakdownCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *BreakdownCacheStats
	prefix string
	logger *logrus.Logger
}

func NewBreakdownCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *BreakdownCache {
	return &BreakdownCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &BreakdownCacheStats{},
		prefix: "cache_breakdown:",
		logger: logger,
	}
}

func (c *BreakdownCache) key(partner, path string) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, partner, path)
}

// Get returns the cached breakdown for a partner/path, or false on miss.
// Redis errors degrade to a miss so the caller falls back to a direct fetch.
func (c *BreakdownCache) Get(ctx context.Context, partner, path string) (map[string]int64, bool) {
	data, err := c.redis.Get(ctx, c.key(partner, path)).Result()
	if err == redis.Nil {
		c.recordMiss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"partner": partner,
			"path":    path,
		}).Warn("Redis error reading cache breakdown, treating as miss")
		c.recordMiss()
		return nil, false
	}

	var entry BreakdownEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).Warn("Corrupt cache breakdown entry, treating as miss")
		c.recordMiss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return entry.Breakdown, true
}

// Set stores a breakdown under the configured TTL. Failures are logged and
// swallowed; caching is best effort.
func (c *BreakdownCache) Set(ctx context.Context, partner, path string, breakdown map[string]int64, window time.Duration) {
	entry := BreakdownEntry{
		Breakdown: breakdown,
		Window:    window,
		CachedAt:  time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to serialize cache breakdown entry")
		return
	}

	if err := c.redis.Set(ctx, c.key(partner, path), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"partner": partner,
			"path":    path,
		}).Warn("Failed to store cache breakdown entry")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Stats exposes the counters for reporting.
func (c *BreakdownCache) Stats() *BreakdownCacheStats {
	return c.stats
}

func (c *BreakdownCache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
