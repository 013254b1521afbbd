package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const keyRate = "airtax:rate:%s:%s"

// RedisRates is a read-through cache in front of another RateSource. Cache
// errors fall through to the origin; they never fail a conversion.
type RedisRates struct {
	client *redis.Client
	origin RateSource
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisRates(client *redis.Client, origin RateSource, ttl time.Duration, log *zap.Logger) *RedisRates {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisRates{client: client, origin: origin, ttl: ttl, log: log.Named("currency.cache")}
}

func rateKey(cur string, date time.Time) string {
	return fmt.Sprintf(keyRate, strings.ToUpper(cur), date.UTC().Format("20060102"))
}

func (r *RedisRates) Rate(ctx context.Context, cur string, date time.Time) (decimal.Decimal, error) {
	key := rateKey(cur, date)
	raw, err := r.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(raw); perr == nil {
			return rate, nil
		}
		r.log.Warn("discarding malformed cached rate", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		r.log.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
	}

	rate, err := r.origin.Rate(ctx, cur, date)
	if err != nil {
		return decimal.Zero, err
	}
	if err := r.client.Set(ctx, key, rate.String(), r.ttl).Err(); err != nil {
		r.log.Warn("rate cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rate, nil
}

// Warm loads the given currencies for date into the cache.
func (r *RedisRates) Warm(ctx context.Context, currencies []string, date time.Time) (int, error) {
	warmed := 0
	var errs []error
	for _, cur := range currencies {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		rate, err := r.origin.Rate(ctx, cur, date)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.client.Set(ctx, rateKey(cur, date), rate.String(), r.ttl).Err(); err != nil {
			errs = append(errs, err)
			continue
		}
		warmed++
	}
	return warmed, errors.Join(errs...)
}
