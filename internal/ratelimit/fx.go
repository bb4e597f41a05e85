package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/staybook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideClient),
	fx.Provide(NewIngestLimiter),
)

type clientOut struct {
	fx.Out

	Client redis.UniversalClient `name:"ratelimit_redis"`
}

func provideClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) clientOut {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || strings.TrimSpace(limitCfg.RedisAddr) == "" {
		return clientOut{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(limitCfg.RedisAddr),
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("rate limit redis unreachable, failing open", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return clientOut{Client: client}
}
