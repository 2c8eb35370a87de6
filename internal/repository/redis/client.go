package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client holds the Redis connection backing the leaderboard rank index.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis from a connection URL and verifies the
// connection with a ping.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
