package db

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"parking-alpr-service/internal/config"
)

// NewRedisClient connects to Redis for rate limiting. Returns nil when no
// address is configured or the server is unreachable; callers degrade by
// disabling rate limiting instead of failing startup.
func NewRedisClient(cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
