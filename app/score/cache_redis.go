package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores results as JSON under score:<source id>.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	slog.Info("Connected to Redis", "addr", addr)
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Key(sourceID string) string {
	return fmt.Sprintf("score:%s", sourceID)
}

func (c *RedisCache) Get(ctx context.Context, sourceID string) (Result, bool, error) {
	key := c.Key(sourceID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		// unreadable entry counts as a miss
		c.client.Del(ctx, key)
		return Result{}, false, nil
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, sourceID string, r Result) error {
	key := c.Key(sourceID)
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, sourceID string) error {
	key := c.Key(sourceID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Health() map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = n
	}
	return health
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
