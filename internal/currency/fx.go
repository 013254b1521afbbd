package currency

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/airtax/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("currency",
	fx.Provide(NewConfigRates),
	fx.Provide(func(client *redis.Client, origin *ConfigRates, cfg config.Config, log *zap.Logger) *RedisRates {
		return NewRedisRates(client, origin, cfg.RateCacheTTL, log)
	}),
	fx.Provide(func(origin *ConfigRates, cached *RedisRates) RateSource {
		if cached != nil {
			return cached
		}
		return origin
	}),
	fx.Provide(
		fx.Annotate(NewConverter, fx.As(new(Converter))),
	),
	fx.Provide(NewFareRounder),
)
