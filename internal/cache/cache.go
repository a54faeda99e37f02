// Package cache provides an optional Redis read-through cache for downloaded blobs.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ahmad-alkadri/depot-dataservice/internal/metrics"
)

// KeyPrefix namespaces every cached blob; the full key is KeyPrefix + container + "/" + key.
const KeyPrefix = "dataservice:blob:"

// Config contains cache configuration.
type Config struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	TTL            time.Duration
	MaxObjectBytes int64
}

// BlobCache is what the data service needs from a cache.
type BlobCache interface {
	Get(ctx context.Context, container, key string) ([]byte, bool)
	Set(ctx context.Context, container, key string, data []byte)
	Invalidate(ctx context.Context, container, key string)
	Close() error
}

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Cache is a Redis-backed BlobCache. Redis failures are logged and reported as
// misses; they never fail the caller.
type Cache struct {
	client  redisClient
	ttl     time.Duration
	maxSize int64
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ BlobCache = (*Cache)(nil)

// New returns a Redis cache, or a no-op cache when no address is configured.
func New(cfg Config, logger zerolog.Logger, m *metrics.Metrics) BlobCache {
	if cfg.RedisAddr == "" {
		return Nop{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return newCache(client, cfg, logger, m)
}

func newCache(client redisClient, cfg Config, logger zerolog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxObjectBytes,
		logger:  logger.With().Str("component", "cache").Logger(),
		metrics: m,
	}
}

func cacheKey(container, key string) string {
	return KeyPrefix + container + "/" + key
}

// Get returns the cached bytes for container/key.
func (c *Cache) Get(ctx context.Context, container, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, cacheKey(container, key)).Bytes()
	switch {
	case err == nil:
		c.observe("hit")
		return data, true
	case errors.Is(err, redis.Nil):
		c.observe("miss")
	default:
		c.observe("error")
		c.logger.Warn().Err(err).Str("container", container).Str("key", key).Msg("cache get failed")
	}
	return nil, false
}

// Set stores data unless it is larger than the configured maximum.
func (c *Cache) Set(ctx context.Context, container, key string, data []byte) {
	if c.maxSize > 0 && int64(len(data)) > c.maxSize {
		return
	}
	if err := c.client.Set(ctx, cacheKey(container, key), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("container", container).Str("key", key).Msg("cache set failed")
	}
}

// Invalidate drops the cached copy after a write or delete.
func (c *Cache) Invalidate(ctx context.Context, container, key string) {
	if err := c.client.Del(ctx, cacheKey(container, key)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("container", container).Str("key", key).Msg("cache invalidate failed")
	}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) observe(result string) {
	if c.metrics != nil {
		c.metrics.CacheRequests.WithLabelValues(result).Inc()
	}
}

// Nop is the cache used when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, string, []byte)        {}
func (Nop) Invalidate(context.Context, string, string)         {}
func (Nop) Close() error                                       { return nil }
