package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alhumaw/MISP-tools-fork/internal/config"
	"github.com/alhumaw/MISP-tools-fork/internal/logger"
)

// Base carries the shared application wiring: config, logger and the
// optional Redis connection backing the checkpoint store.
type Base struct {
	Config *config.Config
	Logger logger.Logger
	Redis  *redis.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects and pings the configured Redis instance.
func (b *Base) InitRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", b.Config.Redis.Host, b.Config.Redis.Port),
		Password: b.Config.Redis.Password,
		DB:       b.Config.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	b.Logger.Info("Redis connected successfully")
	b.Redis = rdb
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
