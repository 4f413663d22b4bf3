package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL   = 10 * time.Second
	defaultRedisWait  = 5 * time.Second
	defaultRetryDelay = 25 * time.Millisecond
	redisKeyPrefix    = "webshop:lock:"
)

// ErrLockLost reports that a lock expired before its holder released it.
var ErrLockLost = errors.New("locking: lock expired before release")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOption customises RedisLocker behaviour.
type RedisOption func(*RedisLocker)

// WithTTL sets the lease duration applied to each lock.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithWait bounds how long Lock retries before giving up.
func WithWait(wait time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

// RedisClient is the subset of the go-redis client used for leases.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker implements Locker with SET NX PX leases released by a compare-and-delete script.
type RedisLocker struct {
	client RedisClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisLocker constructs a RedisLocker backed by client.
func NewRedisLocker(client RedisClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		ttl:    defaultRedisTTL,
		wait:   defaultRedisWait,
		retry:  defaultRetryDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Lock polls until the lease is acquired, ctx is done, or the wait budget elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("locking: redis client not configured")
	}

	redisKey := redisKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: acquire %s: %w", ErrLockUnavailable, key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func(ctx context.Context) error {
		released, err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("locking: release %s: %w", key, err)
		}
		if released == 0 {
			return fmt.Errorf("%w: %s", ErrLockLost, key)
		}
		return nil
	}, nil
}
