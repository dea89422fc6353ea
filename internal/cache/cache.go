// Package cache wraps redis for JSON values and cross-instance locks. A nil
// *Cache is valid: reads miss, writes are dropped and locks are always
// granted.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values under a key prefix
type Cache struct {
	client *redis.Client
	prefix string
}

// New creates a cache on client. Keys are namespaced with prefix.
func New(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// GetJSON decodes the value under key into dst and reports whether it was
// present
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key for ttl
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// releaseScript deletes the lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a held lock
type Lock struct {
	cache *Cache
	key   string
	token string
}

// TryLock acquires key for ttl without waiting. ok is false when another
// holder has it.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if c == nil {
		return &Lock{}, true, nil
	}
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key("lock:"+key), token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{cache: c, key: c.key("lock:" + key), token: token}, true, nil
}

// Release frees the lock if it has not expired and been taken by another
// holder
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.cache == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.cache.client, []string{l.key}, l.token).Err()
}
