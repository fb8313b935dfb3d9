package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrRedisNotConfigured = errors.New("redis address is not configured")

func NewRedis(ctx context.Context) (*redis.Client, error) {
	if config.Conf.RedisAddr == "" {
		return nil, ErrRedisNotConfigured
	}

	return OpenRedis(ctx, &redis.Options{
		Addr:         config.Conf.RedisAddr,
		Password:     config.Conf.RedisPassword,
		DB:           config.Conf.RedisDB,
		DialTimeout:  time.Duration(config.Conf.RedisTimeout) * time.Second,
		ReadTimeout:  time.Duration(config.Conf.RedisTimeout) * time.Second,
		WriteTimeout: time.Duration(config.Conf.RedisTimeout) * time.Second,
	})
}

// OpenRedis connects and pings once.
func OpenRedis(ctx context.Context, options *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		logging.Logger.Error("Failed to ping Redis", zap.String("addr", options.Addr), zap.String("error", err.Error()))

		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logging.Logger.Info("Successfully connected to Redis", zap.String("addr", options.Addr))

	return client, nil
}
