// Package redis implements Redis-backed repositories for Tribuna Storage.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tribuna-digital/tribuna-storage/internal/config"
	"github.com/tribuna-digital/tribuna-storage/internal/repository"
)

// NewClient creates a Redis client from configuration and verifies the
// connection.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", repository.ErrLockUnavailable, err)
	}

	logger.Info().Str("addr", cfg.Addr()).Int("db", cfg.DB).Msg("connected to Redis")
	return client, nil
}

// releaseScript deletes a lock key only when it still holds our token, so a
// lock that expired and was re-acquired elsewhere is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only when the lock still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// DistributedLock implements repository.DistributedLock using Redis SET NX
// with a per-process token.
type DistributedLock struct {
	client *redis.Client
	token  string
	logger zerolog.Logger
}

// NewDistributedLock creates a Redis-backed distributed lock.
func NewDistributedLock(client *redis.Client, logger zerolog.Logger) *DistributedLock {
	return &DistributedLock{
		client: client,
		token:  uuid.NewString(),
		logger: logger.With().Str("component", "redis_lock").Logger(),
	}
}

// Acquire attempts to acquire a lock.
func (l *DistributedLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", repository.ErrLockUnavailable, err)
	}
	return ok, nil
}

// Release releases a lock held by this process.
func (l *DistributedLock) Release(ctx context.Context, key string) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{key}, l.token).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", repository.ErrLockUnavailable, err)
	}
	return n == 1, nil
}

// Extend extends the TTL of a lock held by this process.
func (l *DistributedLock) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, l.client, []string{key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", repository.ErrLockUnavailable, err)
	}
	return n == 1, nil
}
