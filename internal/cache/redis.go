// Package cache backs the API client's GET response cache with Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/config"
)

// ResponseCache stores raw response bodies under a key prefix. Redis
// errors are logged and treated as misses so a cache outage only costs
// extra requests.
type ResponseCache struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *ResponseCache {
	return &ResponseCache{
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Connect dials Redis from configuration and pings it.
func Connect(ctx context.Context, cfg config.CacheConfig) (*ResponseCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("Response cache connected")
	return New(client, cfg.Prefix), nil
}

// Key namespaces a cache key.
func (c *ResponseCache) Key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	return body, true
}

func (c *ResponseCache) Set(ctx context.Context, key string, body []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.Key(key), body, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

func (c *ResponseCache) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}

func (c *ResponseCache) Close() error {
	return c.client.Close()
}
