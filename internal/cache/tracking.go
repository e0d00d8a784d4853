// Package cache holds the Redis-backed cache for public tracking lookups.
// Citizens poll their tracking code without authentication, so the hot
// lookups are served from Redis with a short TTL instead of hitting Postgres
// every time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicgrid/complaint-service/internal/config"
)

const trackingKeyPrefix = "tracking:"

// TrackingStatus is the cached view of a complaint's public status.
type TrackingStatus struct {
	TrackingCode string    `json:"tracking_code"`
	Status       string    `json:"status"`
	Severity     string    `json:"severity"`
	CategoryName string    `json:"category_name"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TrackingCache caches tracking-code lookups in Redis.
type TrackingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewTrackingCache connects to Redis and returns the cache.
func NewTrackingCache(cfg config.RedisConfig, logger *slog.Logger) (*TrackingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &TrackingCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}, nil
}

// Get returns the cached status for a tracking code, or nil on a miss.
func (c *TrackingCache) Get(ctx context.Context, code string) (*TrackingStatus, error) {
	value, err := c.client.Get(ctx, trackingKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking cache: %w", err)
	}

	var status TrackingStatus
	if err := json.Unmarshal([]byte(value), &status); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten.
		c.logger.Warn("Dropping corrupt tracking cache entry", "tracking_code", code)
		return nil, nil
	}

	return &status, nil
}

// Set stores the status for a tracking code with the configured TTL.
func (c *TrackingCache) Set(ctx context.Context, status *TrackingStatus) error {
	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking status: %w", err)
	}

	if err := c.client.Set(ctx, trackingKeyPrefix+status.TrackingCode, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write tracking cache: %w", err)
	}

	return nil
}

// Invalidate removes a tracking code from the cache.
func (c *TrackingCache) Invalidate(ctx context.Context, code string) error {
	return c.client.Del(ctx, trackingKeyPrefix+code).Err()
}

// Close closes the Redis connection.
func (c *TrackingCache) Close() error {
	return c.client.Close()
}
