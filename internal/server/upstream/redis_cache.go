package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "upstream_session:"

// RedisSessionCache shares upstream sessions between gateway instances.
// Expiry is delegated to Redis key TTLs.
type RedisSessionCache struct {
	client redis.UniversalClient
}

func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

func (c *RedisSessionCache) Get(ctx context.Context, connID string) (string, bool, error) {
	val, err := c.client.Get(ctx, sessionKeyPrefix+connID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get upstream session: %w", err)
	}
	return val, true, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, connID, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, sessionKeyPrefix+connID, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save upstream session: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Delete(ctx context.Context, connID string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+connID).Err(); err != nil {
		return fmt.Errorf("failed to delete upstream session: %w", err)
	}
	return nil
}

// Purge deletes every upstream session key using SCAN, never KEYS.
func (c *RedisSessionCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("failed to purge upstream sessions: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan upstream sessions: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to purge upstream sessions: %w", err)
		}
	}
	return nil
}
