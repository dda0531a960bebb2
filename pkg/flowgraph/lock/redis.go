package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if this holder still owns it.
var unlockScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// renewScript resets the expiry only if this holder still owns the key.
var renewScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLocker implements Distributed with Redis SET NX PX.
type RedisLocker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// NewRedisLocker creates a locker whose keys live under prefix+"lock:".
func NewRedisLocker(client *backend.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		poll:   50 * time.Millisecond,
	}
}

// Lock implements Distributed. It polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return &redisLease{client: l.client, key: lockKey, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// redisLease is a lock key owned by token.
type redisLease struct {
	client *backend.Client
	key    string
	token  string
}

// Renew implements Lease.
func (l *redisLease) Renew(ctx context.Context, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis error renewing lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

// Release implements Lease.
func (l *redisLease) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
