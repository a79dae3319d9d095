// Package redis remembers which alerts have already been published.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const keyPrefix = "karukera:published:"

// client is the subset of *goredis.Client the cache uses.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// SeenCache records alert ids with a TTL. It implements pipeline.SeenCache.
type SeenCache struct {
	client client
	ttl    time.Duration
}

// NewSeenCache connects to the Redis instance at redisURL.
func NewSeenCache(redisURL string, ttl time.Duration) (*SeenCache, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &SeenCache{client: goredis.NewClient(opt), ttl: ttl}, nil
}

// MarkSeen records id and reports whether this is the first time it was seen
// within the TTL window.
func (c *SeenCache) MarkSeen(ctx context.Context, id string) (bool, error) {
	first, err := c.client.SetNX(ctx, keyPrefix+id, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark alert %s seen: %w", id, err)
	}
	return first, nil
}

// Unmark deletes the given ids so they count as unseen again.
func (c *SeenCache) Unmark(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("unmark %d alerts: %w", len(ids), err)
	}
	return nil
}

// Ready pings Redis.
func (c *SeenCache) Ready(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *SeenCache) Close() error {
	return c.client.Close()
}
