package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CacheKey returns the Redis key holding a user's effective permission set.
func CacheKey(userID uuid.UUID) string {
	return "perm:" + userID.String()
}

// RedisCache stores effective permission sets as JSON string arrays under
// perm:{userID} with a TTL backstop. Explicit invalidation is the primary
// coherency mechanism; the TTL only bounds staleness if a delete is lost.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache builds a cache with the given TTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached permission set. ok is false on a clean miss;
// err is non-nil only when the cache itself failed.
func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, CacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resolver: cache get: %w", err)
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next set.
		return nil, false, nil
	}
	return perms, true, nil
}

// Set writes the permission set with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, userID uuid.UUID, perms []string) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("resolver: cache encode: %w", err)
	}
	if err := c.client.Set(ctx, CacheKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("resolver: cache set: %w", err)
	}
	return nil
}

// Delete drops the cached set for a user. Missing keys are not an error.
func (c *RedisCache) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, CacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("resolver: cache delete: %w", err)
	}
	return nil
}
