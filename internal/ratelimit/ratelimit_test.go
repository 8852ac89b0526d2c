package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/accounts/internal/apperror"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// =========================================================================
// REDIS COUNTER TESTS
// =========================================================================

func TestRedisCounter_IncrementsAndSetsTTL(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	c := NewRedisCounter(rdb, "test:")
	ctx := context.Background()

	n, remaining, err := c.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, remaining)

	n, _, err = c.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, time.Minute, mr.TTL("test:k"))
}

func TestRedisCounter_WindowResetsAfterExpiry(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	c := NewRedisCounter(rdb, "test:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := c.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(61 * time.Second)

	n, _, err := c.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new window starts after the old one expires")
}

func TestRedisCounter_ConcurrentIncrementsAreAtomic(t *testing.T) {
	_, rdb := newMiniRedis(t)
	c := NewRedisCounter(rdb, "test:")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Increment(context.Background(), "burst", time.Minute)
		}()
	}
	wg.Wait()

	n, _, err := c.Increment(context.Background(), "burst", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(21), n)
}

func TestRedisCounter_ServerDown(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	mr.Close()

	_, _, err := NewRedisCounter(rdb, "test:").Increment(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

// =========================================================================
// MEMORY COUNTER TESTS
// =========================================================================

func TestMemoryCounter_FixedWindow(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	n, remaining, _ := c.Increment(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, time.Minute, remaining)

	now = now.Add(30 * time.Second)
	n, remaining, _ = c.Increment(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 30*time.Second, remaining)

	now = now.Add(30 * time.Second)
	n, _, _ = c.Increment(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n, "window closes exactly at resetAt")
}

func TestMemoryCounter_KeysAreIndependent(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	c.Increment(ctx, "a", time.Minute)
	c.Increment(ctx, "a", time.Minute)
	n, _, _ := c.Increment(ctx, "b", time.Minute)

	assert.Equal(t, int64(1), n)
}

// =========================================================================
// LIMITER TESTS
// =========================================================================

func TestLimiter_SixthRequestThrottled(t *testing.T) {
	_, rdb := newMiniRedis(t)
	l := NewLimiter(NewRedisCounter(rdb, "test:"), "register", 5, time.Minute, testLogger())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Allow(ctx, "ip:203.0.113.7"), "request %d should pass", i)
	}

	err := l.Allow(ctx, "ip:203.0.113.7")
	require.ErrorIs(t, err, apperror.ErrThrottled)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))

	// another client is unaffected
	assert.NoError(t, l.Allow(ctx, "ip:198.51.100.1"))
}

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("connection refused")
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := NewLimiter(failingCounter{}, "register", 1, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Allow(context.Background(), "ip:1.2.3.4"))
	}
}
