package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "authkeeper:throttle:"

// RedisLimiter shares counters between server instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, p Policy) *RedisLimiter {
	return &RedisLimiter{client: client, policy: p.withDefaults()}
}

// NewRedisClient parses url, connects and pings before returning.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

func failKey(key string) string { return keyPrefix + "fail:" + key }
func lockKey(key string) string { return keyPrefix + "lock:" + key }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, lockKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	// missing keys report a negative ttl
	if ttl > 0 {
		return ttl, nil
	}
	return 0, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	fk := failKey(key)

	n, err := l.client.Incr(ctx, fk).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if n == 1 {
		if err := l.client.PExpire(ctx, fk, l.policy.Window).Err(); err != nil {
			return fmt.Errorf("redis error: %w", err)
		}
	}
	if n < int64(l.policy.Attempts) {
		return nil
	}

	_, err = l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, lockKey(key), 1, l.policy.Lockout)
		p.Del(ctx, fk)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, failKey(key), lockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
