package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheWithClient(RedisConfig{Prefix: "gestoria:", DefaultTTL: 5 * time.Minute}, client)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "budget-config:AUTONOMO")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "budget-config:AUTONOMO", "v1", 0))
	assert.True(t, mr.Exists("gestoria:budget-config:AUTONOMO"))
	assert.Equal(t, 5*time.Minute, mr.TTL("gestoria:budget-config:AUTONOMO"))

	got, err := c.Get(ctx, "budget-config:AUTONOMO")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	mr.FastForward(6 * time.Minute)
	_, err = c.Get(ctx, "budget-config:AUTONOMO")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCacheDelete(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "long", "v", 0))

	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrMiss)

	got, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	var out payload
	hit, err := GetJSON(ctx, c, "p", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, SetJSON(ctx, c, "p", payload{Name: "tarifa", Count: 3}, 0))
	hit, err = GetJSON(ctx, c, "p", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, payload{Name: "tarifa", Count: 3}, out)
}
