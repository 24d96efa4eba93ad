package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis shared by every BFF instance for slot
// locks and cached CEP lookups, and pings it once.
func NewRedisClient(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:            addr,
		Username:        username,
		Password:        password,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		PoolSize:        8,
		MinIdleConns:    1,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}
	return client, nil
}
