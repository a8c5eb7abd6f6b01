// Package cache is a thin redis wrapper used as a short-TTL response cache
// for remote reads. The companion works without it; a nil *Client disables
// caching.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	rdb *redis.Client
}

func New(dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.ConnMaxLifetime = 30 * time.Minute

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Get returns the cached value, or "" on a miss. Nil-safe.
func (c *Client) Get(ctx context.Context, key string) string {
	if c == nil {
		return ""
	}
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return v
}

// Set stores a value with a TTL. Nil-safe; errors are deliberately dropped,
// a failed cache write must never fail the fetch that produced the value.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil {
		return
	}
	_ = c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del removes keys. Nil-safe.
func (c *Client) Del(ctx context.Context, keys ...string) {
	if c == nil {
		return
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}
