package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only while it still holds the caller's
// token, so an expired holder never releases a newer one.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// RedisLocker is a cross-instance mutex built on SETNX with a TTL.
type RedisLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

// NewRedisLocker creates a locker on the given client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire obtains the lock for key or returns ErrLockHeld. The returned
// release func is safe to call more than once.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := "ppe:lock:" + key

	ok, err := l.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{lk}, token).Err()
	}
	return release, nil
}
