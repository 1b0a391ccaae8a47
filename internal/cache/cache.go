package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"shortlinks/internal/db"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "link:"

// Cache keeps resolved links keyed by short code.
type Cache interface {
	Get(ctx context.Context, shortCode string) (*db.Link, error)
	Set(ctx context.Context, link *db.Link) error
	Delete(ctx context.Context, shortCode string) error
}

// RedisCache wraps a Redis client for caching
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis cache with default TTL
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisCache(client, ttl), nil
}

// Get retrieves a link by short code.
func (r *RedisCache) Get(ctx context.Context, shortCode string) (*db.Link, error) {
	data, err := r.client.Get(ctx, keyPrefix+shortCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var link db.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Set stores a link under its short code with TTL.
func (r *RedisCache) Set(ctx context.Context, link *db.Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+link.ShortCode, data, r.ttl).Err()
}

// Delete removes a short code from the cache.
func (r *RedisCache) Delete(ctx context.Context, shortCode string) error {
	return r.client.Del(ctx, keyPrefix+shortCode).Err()
}

// Close releases the client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Noop is used when no Redis is configured. Every Get misses.
type Noop struct{}

func (Noop) Get(context.Context, string) (*db.Link, error) { return nil, ErrCacheMiss }
func (Noop) Set(context.Context, *db.Link) error           { return nil }
func (Noop) Delete(context.Context, string) error          { return nil }

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = Noop{}
)
