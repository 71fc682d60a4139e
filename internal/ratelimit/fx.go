package ratelimit

import (
	"github.com/lumahq/lumina/internal/config"
	"github.com/lumahq/lumina/internal/ratelimit/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when no redis address is configured; the sweep
// lock degrades to single-instance behavior in that case.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("ratelimit",
	fx.Provide(service.New),
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)
