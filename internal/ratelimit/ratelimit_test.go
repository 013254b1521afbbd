package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestLocker_SingleHolder(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "someone-else"))
	assert.True(t, mr.Exists("job"))

	require.NoError(t, locker.Release(ctx, "job", token))
	assert.False(t, mr.Exists("job"))
}

func TestLocker_ExpiredLockIsFree(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "job", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_WithLock(t *testing.T) {
	mr, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	boom := errors.New("boom")
	held, err := locker.WithLock(ctx, "job", time.Minute, func(context.Context) error {
		assert.True(t, mr.Exists("job"))
		inner, err := locker.WithLock(ctx, "job", time.Minute, func(context.Context) error {
			t.Fatal("lock is held")
			return nil
		})
		assert.False(t, inner)
		assert.NoError(t, err)
		return boom
	})
	assert.True(t, held)
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("job"))
}

func TestLocker_Validation(t *testing.T) {
	_, client := newRedis(t)
	var nilLocker *Locker
	_, _, err := nilLocker.TryLock(context.Background(), "job", time.Second)
	assert.ErrorIs(t, err, ErrNotConfigured)

	locker := NewLocker(client)
	_, _, err = locker.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, _, err = locker.TryLock(context.Background(), "job", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestTokenBucket_DeniesPastBurst(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "bucket", 0.01, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2, res.Limit)
	}

	res, err := bucket.Allow(ctx, "bucket", 0.01, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestEvaluateLimiter(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, EvaluateRate: 0.01, EvaluateBurst: 1}}
	limiter := NewEvaluateLimiter(cfg, client, zap.NewNop())
	require.True(t, limiter.Enabled())
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "buckets are per client")
}

func TestEvaluateLimiter_DisabledAllowsAll(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewEvaluateLimiter(config.Config{}, client, zap.NewNop())
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.Nil(t, NewEvaluateLimiter(config.Config{RateLimit: config.RateLimitConfig{Enabled: true, EvaluateRate: 1, EvaluateBurst: 1}}, nil, zap.NewNop()))
}
