// Package cache provides a small key/value cache backed by Redis, or by an
// in-process store when no Redis address is configured.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RedisClient is the subset of go-redis client methods used by RedisCache.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

type RedisCache struct {
	cfg    RedisConfig
	client RedisClient
}

// NewRedisCache connects and verifies the connection with PING.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheWithClient(cfg, client), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(cfg RedisConfig, client RedisClient) *RedisCache {
	return &RedisCache{cfg: cfg, client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.cfg.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// Set stores value. A zero ttl uses the default; if that is zero too the key never expires.
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	return r.client.Set(ctx, r.cfg.Prefix+key, value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.cfg.Prefix+key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// MemoryCache keeps entries in process memory. Expired entries are purged
// every cleanup interval.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(defaultTTL, cleanup time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, cleanup)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return v.(string), nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, value, ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *MemoryCache) Close() error {
	m.store.Flush()
	return nil
}

// GetJSON decodes the cached value of key into out. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) (bool, error) {
	raw, err := c.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s for cache: %w", key, err)
	}
	return c.Set(ctx, key, string(raw), ttl)
}
