package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skillswap-hub/skillswap-core/internal/domain/shared"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// UserLock implements shared.UserLocker across API instances.
type UserLock struct {
	cache *Cache
	ttl   time.Duration
	poll  time.Duration
}

// UserLockOption configures a UserLock.
type UserLockOption func(*UserLock)

// WithLockTTL sets how long a lock survives a crashed holder.
func WithLockTTL(ttl time.Duration) UserLockOption {
	return func(l *UserLock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPollInterval sets the retry interval while waiting for a held lock.
func WithPollInterval(d time.Duration) UserLockOption {
	return func(l *UserLock) {
		if d > 0 {
			l.poll = d
		}
	}
}

// NewUserLock creates a distributed per-user lock.
func NewUserLock(cache *Cache, opts ...UserLockOption) *UserLock {
	l := &UserLock{
		cache: cache,
		ttl:   TTLDistributedLock,
		poll:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements shared.UserLocker. It polls SET NX until the lock is
// acquired or ctx is done.
func (l *UserLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := LockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.cache.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, shared.WrapError("redis", "Lock", shared.ErrLockNotAcquired, userID, ctx.Err())
			}
			return nil, shared.WrapError("redis", "Lock", shared.ErrServiceUnavailable, "lock backend unavailable", err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, shared.WrapError("redis", "Lock", shared.ErrLockNotAcquired, userID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *UserLock) unlocker(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's ctx may already be cancelled; release on a short fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.cache.client, []string{key}, token).Err()
	}
}
