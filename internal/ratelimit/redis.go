package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a shared Redis instance so the failure count
// survives restarts and is shared across replicas. Keys expire with the
// window; Redis handles eviction.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedis(redisURL string, limit int, window time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisWithClient(client, limit, window), nil
}

// NewRedisWithClient wraps an existing client, used by tests with miniredis.
func NewRedisWithClient(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  limit,
		window: window,
		prefix: "login-fail:",
	}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) RecordFailure(ctx context.Context, key string) (int, error) {
	count, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, r.key(key), r.window).Err(); err != nil {
			return 0, fmt.Errorf("set failure window: %w", err)
		}
	}
	return int(count), nil
}

func (r *Redis) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup failure count: %w", err)
	}
	if count < r.limit {
		return 0, nil
	}
	ttl, err := r.client.TTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("lookup failure window: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("clear failure count: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
