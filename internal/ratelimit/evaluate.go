package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/airtax/internal/config"
	"go.uber.org/zap"
)

const keyEvaluateClient = "airtax:ratelimit:evaluate:%s"

// EvaluateLimiter throttles tax evaluation requests per client.
type EvaluateLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewEvaluateLimiter returns nil when rate limiting is off or redis is not
// configured; a nil limiter allows everything.
func NewEvaluateLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *EvaluateLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil
	}
	if limitCfg.EvaluateRate <= 0 || limitCfg.EvaluateBurst <= 0 {
		log.Warn("evaluate rate limit disabled, rate and burst must be positive")
		return nil
	}
	return &EvaluateLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.EvaluateRate,
		burst:  limitCfg.EvaluateBurst,
		log:    log.Named("ratelimit"),
	}
}

func (l *EvaluateLimiter) Enabled() bool {
	return l != nil
}

// Allow reports whether client may evaluate now. Redis failures fail open.
func (l *EvaluateLimiter) Allow(ctx context.Context, client string) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "anonymous"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyEvaluateClient, client), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing", zap.String("client", client), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}, err
	}
	return res, nil
}
