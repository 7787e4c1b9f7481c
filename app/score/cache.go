package score

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultCacheTTL = 5 * time.Minute

// Cache holds computed results per source id for a fixed TTL.
type Cache interface {
	Get(ctx context.Context, sourceID string) (Result, bool, error)
	Set(ctx context.Context, sourceID string, r Result) error
	Delete(ctx context.Context, sourceID string) error
	Health() map[string]interface{}
	Close() error
}

// MemoryCache is an in-process expiring LRU.
type MemoryCache struct {
	lru *expirable.LRU[string, Result]
	ttl time.Duration
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, Result](size, nil, ttl),
		ttl: ttl,
	}
}

func (c *MemoryCache) Get(ctx context.Context, sourceID string) (Result, bool, error) {
	r, ok := c.lru.Get(sourceID)
	return r, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, sourceID string, r Result) error {
	c.lru.Add(sourceID, r)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, sourceID string) error {
	c.lru.Remove(sourceID)
	return nil
}

func (c *MemoryCache) Health() map[string]interface{} {
	return map[string]interface{}{
		"status":    "healthy",
		"type":      "memory",
		"key_count": c.lru.Len(),
		"ttl":       c.ttl.String(),
	}
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
