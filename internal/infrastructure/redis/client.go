package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client and waits for the server to answer a PING.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	attempts := cfg.ConnectRetries
	if attempts <= 0 {
		attempts = 5
	}
	delay := cfg.ConnectRetryDelay
	if delay <= 0 {
		delay = 1 * time.Second
	}

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  uint(attempts),
		InitialDelay: delay,
		MaxDelay:     time.Duration(attempts) * delay,
	}, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", attempts, err)
	}

	return client, nil
}
