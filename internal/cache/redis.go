// Package cache keeps the latest price per pool in Redis so the query
// surface can answer getLatest without touching aggregation state.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// RedisClient handles Redis caching operations
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		ttl:    time.Minute,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// SetLatest caches the latest price for a pool
func (rc *RedisClient) SetLatest(ctx context.Context, pool string, latest *models.Latest) error {
	data, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to marshal latest price: %w", err)
	}
	return rc.client.Set(ctx, latestKey(pool), data, rc.ttl).Err()
}

// GetLatest reads the cached latest price for a pool, nil on a miss
func (rc *RedisClient) GetLatest(ctx context.Context, pool string) (*models.Latest, error) {
	data, err := rc.client.Get(ctx, latestKey(pool)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}

	var latest models.Latest
	if err := json.Unmarshal([]byte(data), &latest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest price: %w", err)
	}
	return &latest, nil
}

func latestKey(pool string) string {
	return fmt.Sprintf("latest:%s", pool)
}
