// Package cache provides a Redis-backed read-through cache for pseudonym
// mappings. The cache is advisory: every failure degrades to a store
// lookup, never to a request failure.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
)

// PseudonymCache caches (tenant, original_hash) -> pseudonym lookups.
type PseudonymCache struct {
	client *redis.Client
	config config.CacheConfig
	logger *logger.Logger
}

// New creates a Redis-backed pseudonym cache and verifies connectivity.
func New(cfg config.CacheConfig, log *logger.Logger) (*PseudonymCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Pseudonym cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return &PseudonymCache{client: client, config: cfg, logger: log}, nil
}

// GetPseudonym returns a cached pseudonym and whether it was present.
func (c *PseudonymCache) GetPseudonym(ctx context.Context, tenantID, originalHash string) (string, bool) {
	value, err := c.client.Get(ctx, c.key(tenantID, originalHash)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("Cache lookup failed", zap.Error(err))
		return "", false
	}
	return value, true
}

// SetPseudonym caches a pseudonym with the configured TTL.
func (c *PseudonymCache) SetPseudonym(ctx context.Context, tenantID, originalHash, pseudonym string) {
	if err := c.client.Set(ctx, c.key(tenantID, originalHash), pseudonym, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Warn("Failed to cache pseudonym", zap.Error(err))
	}
}

// DeletePseudonym evicts a cached pseudonym, used by erasure.
func (c *PseudonymCache) DeletePseudonym(ctx context.Context, tenantID, originalHash string) {
	if err := c.client.Del(ctx, c.key(tenantID, originalHash)).Err(); err != nil {
		c.logger.Warn("Failed to evict cached pseudonym", zap.Error(err))
	}
}

// Close closes the Redis connection.
func (c *PseudonymCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *PseudonymCache) key(tenantID, originalHash string) string {
	return fmt.Sprintf("%s:map:%s:%s", c.config.KeyPrefix, tenantID, originalHash)
}

// maskRedisURL masks the password in a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
