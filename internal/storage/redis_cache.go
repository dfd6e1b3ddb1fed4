// internal/storage/redis_cache.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to the server at url and checks it answers
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisCache is a Cache shared between server instances. Entries are
// stored as JSON and carry their fetch time, so freshness is decided the
// same way as in ResponseCache. The key TTL only reclaims space.
type RedisCache[V any] struct {
	settings
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores entries under prefix in client
func NewRedisCache[V any](client redis.UniversalClient, prefix string, ttl time.Duration, opts ...Option) *RedisCache[V] {
	return &RedisCache[V]{
		settings: newSettings(opts),
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
	}
}

func (c *RedisCache[V]) key(key string) string {
	return c.prefix + key
}

// Get returns the value for key if present and fresh. Redis failures are
// logged and read as a miss so the caller falls through to the backend.
func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis cache read failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
		}
		c.metrics.CacheMiss(c.name)
		return zero, false
	}

	var entry Entry[V]
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("redis cache entry corrupt", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
		c.metrics.CacheMiss(c.name)
		return zero, false
	}

	if !entry.FreshAt(c.now(), c.ttl) {
		c.metrics.CacheMiss(c.name)
		return zero, false
	}

	c.metrics.CacheHit(c.name)
	return entry.Data, true
}

// Put stores value under key
func (c *RedisCache[V]) Put(ctx context.Context, key string, value V) {
	raw, err := json.Marshal(Entry[V]{Data: value, FetchedAt: c.now()})
	if err != nil {
		c.logger.Warn("redis cache encode failed", zap.String("cache", c.name), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("redis cache write failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
	}
}

// Delete drops key
func (c *RedisCache[V]) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		c.logger.Warn("redis cache delete failed", zap.String("cache", c.name), zap.String("key", key), zap.Error(err))
	}
}
