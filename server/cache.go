package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache defines a read-through cache for point record reads. Cache failures
// are advisory: callers log and continue against the store.
type Cache interface {
	GetRecord(ctx context.Context, id string) (*Record, error)
	SetRecord(ctx context.Context, record *Record) error
	DeleteRecord(ctx context.Context, id string) error
}

// NoOpCache implements the Cache interface but does nothing.
type NoOpCache struct{}

// GetRecord always misses.
func (c *NoOpCache) GetRecord(ctx context.Context, id string) (*Record, error) {
	return nil, ErrNotFound
}

// SetRecord does nothing.
func (c *NoOpCache) SetRecord(ctx context.Context, record *Record) error {
	return nil
}

// DeleteRecord does nothing.
func (c *NoOpCache) DeleteRecord(ctx context.Context, id string) error {
	return nil
}

// RedisCache implements the Cache interface using Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis cache and verifies the connection.
func NewRedisCache(ctx context.Context, address string, ttlSeconds int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        address,
		Password:    "", // no password
		DB:          0,  // use default DB
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func userCacheKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// GetRecord gets a record from the cache.
func (c *RedisCache) GetRecord(ctx context.Context, id string) (*Record, error) {
	data, err := c.client.Get(ctx, userCacheKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetRecord sets a record in the cache.
func (c *RedisCache) SetRecord(ctx context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userCacheKey(record.ID), data, c.ttl).Err()
}

// DeleteRecord deletes a record from the cache.
func (c *RedisCache) DeleteRecord(ctx context.Context, id string) error {
	return c.client.Del(ctx, userCacheKey(id)).Err()
}
