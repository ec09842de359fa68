package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/renewcast/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return client
}

func liveClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb)
}

func TestNewClient_Disabled(t *testing.T) {
	client := disabledClient(t)
	assert.False(t, client.Enabled())
	assert.Nil(t, client.Redis())
	assert.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, client.Close())

	var none *Client
	assert.False(t, none.Enabled())
	assert.NoError(t, none.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "test")
	cfg := OpenMeteoRateLimit(5)

	allowed, remaining, err := limiter.Allow(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, cfg.Limit, remaining)
	assert.NoError(t, limiter.Wait(context.Background(), cfg))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(disabledClient(t), "test")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var out map[string]int
	found, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestLocker_DisabledIsNoop(t *testing.T) {
	locker := NewLocker(disabledClient(t), "test")

	first, err := locker.Acquire(context.Background(), "site:1", time.Minute)
	require.NoError(t, err)
	second, err := locker.Acquire(context.Background(), "site:1", time.Minute)
	require.NoError(t, err)

	assert.NoError(t, first.Release(context.Background()))
	assert.NoError(t, second.Release(context.Background()))
}

func TestRecommendationKey(t *testing.T) {
	assert.Equal(t, "recommendation:7:upcoming", RecommendationKey(7, "upcoming"))
}

func TestLocker_ExcludesSecondHolder(t *testing.T) {
	client := liveClient(t)
	locker := NewLocker(client, "renewcast-test")
	ctx := context.Background()

	held, err := locker.Acquire(ctx, "site:42", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, "site:42", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release(ctx))
	assert.ErrorIs(t, held.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "site:42", 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, again.Release(ctx))
}

func TestRateLimiter_Live(t *testing.T) {
	client := liveClient(t)
	limiter := NewRateLimiter(client, "renewcast-test-"+time.Now().Format("150405.000000"))
	cfg := RateLimitConfig{Key: "burst", Limit: 2, Window: time.Second}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, remaining, err := limiter.Allow(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}
