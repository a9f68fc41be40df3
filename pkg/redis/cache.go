package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCache stores JSON documents under a key prefix with a fixed TTL.
type JSONCache struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

func NewJSONCache(client *Client, keyPrefix string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Get decodes the cached value into dest. It reports false on a miss.
func (c *JSONCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *JSONCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.rdb.Set(ctx, c.keyPrefix+key, raw, c.ttl).Err()
}

func (c *JSONCache) Invalidate(ctx context.Context, key string) error {
	return c.client.rdb.Del(ctx, c.keyPrefix+key).Err()
}
