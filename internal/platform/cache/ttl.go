package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLCache wraps Redis with JSON serialisation, a fixed TTL and an explicit
// invalidate-on-write hook. Callers invalidate keys when the backing rows
// change; reads between the write and the invalidation may be stale for at
// most the TTL.
type TTLCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewTTLCache instantiates the cache helper under the given key prefix.
func NewTTLCache(client *redis.Client, prefix string, ttl time.Duration) *TTLCache {
	return &TTLCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *TTLCache) key(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *TTLCache) FetchJSON(ctx context.Context, dest interface{}, loader func(context.Context) (interface{}, error), parts ...string) error {
	if loader == nil {
		return errors.New("cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return reencode(value, dest)
	}

	key := c.key(parts...)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(raw, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(encoded, dest)
}

// Invalidate drops the cached entry for the given key parts. Services call
// this from their write paths.
func (c *TTLCache) Invalidate(ctx context.Context, parts ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(parts...)).Err()
}

func reencode(value, dest interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, dest)
}
