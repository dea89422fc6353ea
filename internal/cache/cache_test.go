package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCache(t *testing.T) {
	ctx := context.Background()
	var c *Cache

	var v map[string]int
	found, err := c.GetJSON(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.SetJSON(ctx, "k", 1, time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))

	lock, ok, err := c.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, lock.Release(ctx))
}

func redisCache(t *testing.T) *Cache {
	t.Helper()
	// Skip this test if no Redis is available
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("Skipping Redis-dependent test - REDIS_HOST not set")
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return New(client, "test-"+uuid.NewString())
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := redisCache(t)

	type payload struct {
		Name  string
		Score float64
	}
	require.NoError(t, c.SetJSON(ctx, "p", payload{"Toast", 0.8}, time.Minute))

	var got payload
	found, err := c.GetJSON(ctx, "p", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{"Toast", 0.8}, got)

	require.NoError(t, c.Delete(ctx, "p"))
	found, err = c.GetJSON(ctx, "p", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTryLock(t *testing.T) {
	ctx := context.Background()
	c := redisCache(t)

	lock, ok, err := c.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder is refused")

	require.NoError(t, lock.Release(ctx))
	again, ok, err := c.TryLock(ctx, "train", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, again.Release(ctx))
}
