package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alexanderramin/branchplan/internal/scenario"
	"github.com/redis/go-redis/v9"
)

// ResolveCache stores resolved scenarios keyed by node and project revision.
// Every mutation bumps the revision, so stale entries are never read back;
// they simply expire.
type ResolveCache interface {
	Get(ctx context.Context, nodeID string, revision int) (*scenario.ResolvedScenario, bool, error)
	Set(ctx context.Context, nodeID string, revision int, resolved *scenario.ResolvedScenario) error
}

// RedisResolveCache implements ResolveCache on Redis.
type RedisResolveCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisResolveCache connects to redisURL and verifies the connection.
func NewRedisResolveCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisResolveCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisResolveCacheWithClient(client, ttl), nil
}

// NewRedisResolveCacheWithClient creates a cache from an existing client.
func NewRedisResolveCacheWithClient(client *redis.Client, ttl time.Duration) *RedisResolveCache {
	return &RedisResolveCache{client: client, prefix: "branchplan:resolve:", ttl: ttl}
}

func (c *RedisResolveCache) key(nodeID string, revision int) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, nodeID, revision)
}

func (c *RedisResolveCache) Get(ctx context.Context, nodeID string, revision int) (*scenario.ResolvedScenario, bool, error) {
	data, err := c.client.Get(ctx, c.key(nodeID, revision)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading resolve cache: %w", err)
	}
	var resolved scenario.ResolvedScenario
	if err := json.Unmarshal(data, &resolved); err != nil {
		return nil, false, fmt.Errorf("decoding resolve cache entry: %w", err)
	}
	return &resolved, true, nil
}

func (c *RedisResolveCache) Set(ctx context.Context, nodeID string, revision int, resolved *scenario.ResolvedScenario) error {
	data, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encoding resolve cache entry: %w", err)
	}
	if err := c.client.Set(ctx, c.key(nodeID, revision), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing resolve cache: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *RedisResolveCache) Close() error {
	return c.client.Close()
}
