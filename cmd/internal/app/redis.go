package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis when BAZAAR_REDIS_ADDR is set and returns
// nil otherwise. A nil client means the rate limiter falls back to per-process
// in-memory counting, which is fine for a single instance.
func NewRedisClient(ctx context.Context, cfg Config, log *slog.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("redis.disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	log.Info("redis.connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return rdb, nil
}
