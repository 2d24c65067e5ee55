package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*BreakdownCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewBreakdownCache(client, time.Hour, logger), mr
}

func TestBreakdownCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	breakdown := map[string]int64{"HIT": 1500, "MISS": 500, "BYPASS": 100}
	c.Set(ctx, "acme", "/api/v1/orders", breakdown, 24*time.Hour)

	got, ok := c.Get(ctx, "acme", "/api/v1/orders")
	require.True(t, ok)
	assert.Equal(t, breakdown, got)

	hits, misses, sets := c.Stats().Snapshot()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(0), misses)
	assert.Equal(t, int64(1), sets)
}

func TestBreakdownCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok := c.Get(context.Background(), "acme", "/api/v1/orders")
	assert.False(t, ok)

	_, misses, _ := c.Stats().Snapshot()
	assert.Equal(t, int64(1), misses)
}

func TestBreakdownCacheKeysArePerPartnerPath(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "acme", "/api/v1/orders", map[string]int64{"HIT": 1}, time.Hour)

	_, ok := c.Get(ctx, "acme", "/api/v1/users")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "globex", "/api/v1/orders")
	assert.False(t, ok)
}

func TestBreakdownCacheCorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)

	require.NoError(t, mr.Set("cache_breakdown:acme:/api/v1/orders", "not json"))

	_, ok := c.Get(context.Background(), "acme", "/api/v1/orders")
	assert.False(t, ok)
}

func TestBreakdownCacheRedisDownDegradesToMiss(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, ok := c.Get(context.Background(), "acme", "/api/v1/orders")
	assert.False(t, ok)
}
