package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"unitrack/internal/core/apperror"
	"unitrack/pkg/logger"
)

// RedisConfig tunes the distributed locker.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can block others.
	TTL time.Duration
	// Wait is the longest a caller retries before LOCK_NOT_OBTAINED.
	Wait time.Duration
	// Backoff is the pause between attempts.
	Backoff time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	if c.Wait <= 0 {
		c.Wait = 5 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = 50 * time.Millisecond
	}
	return c
}

// Redis is a distributed locker backed by bsm/redislock.
type Redis struct {
	client *redislock.Client
	cfg    RedisConfig
}

// NewRedis creates a locker over rdb.
func NewRedis(rdb redis.UniversalClient, cfg RedisConfig) *Redis {
	return &Redis{
		client: redislock.New(rdb),
		cfg:    cfg.withDefaults(),
	}
}

// Lock obtains key, retrying with linear backoff for up to cfg.Wait.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	attempts := int(r.cfg.Wait / r.cfg.Backoff)
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.cfg.Backoff), attempts),
	}

	l, err := r.client.Obtain(ctx, key, r.cfg.TTL, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, apperror.NewLockNotObtained(key)
	}
	if err != nil {
		return nil, apperror.NewLockNotObtained(key).WithCause(err)
	}

	return func() {
		// ctx may already be cancelled; release must still reach redis.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.Release(relCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release redis lock", "key", key, "error", err)
		}
	}, nil
}
