package flagcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores flags in redis as "true"/"false" strings with no TTL.
type RedisCache struct {
	client *redis.Client
}

var _ FlagCache = (*RedisCache)(nil)

// NewRedisCache wires a redis-backed flag cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// SetFlag writes the flag.
func (cache *RedisCache) SetFlag(ctx context.Context, key string, value bool) error {
	if err := cache.client.Set(ctx, key, strconv.FormatBool(value), 0).Err(); err != nil {
		return fmt.Errorf("set flag %s: %w", key, err)
	}
	return nil
}

// GetFlag reads the flag. A missing key is not an error.
func (cache *RedisCache) GetFlag(ctx context.Context, key string) (bool, bool, error) {
	raw, err := cache.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get flag %s: %w", key, err)
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("get flag %s: malformed value %q", key, raw)
	}
	return value, true, nil
}
