package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned by Lock when the room stays locked by another
// holder until the context ends.
var ErrLockTimeout = errors.New("timed out waiting for room lock")

const lockRetry = 20 * time.Millisecond

// release deletes the lock only if we still own it.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extend pushes the lock's expiry out only if we still own it.
var extend = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// TryLock takes the room's cross-process lock if it is free. While held,
// the lock is renewed every third of the lock TTL; a crashed holder stops
// renewing and the lock expires on its own.
func (c *Cache) TryLock(ctx context.Context, roomID string) (func(), bool, error) {
	key := lockKey(roomID)
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, c.ttl.Lock).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", roomID, err)
	}
	if !ok {
		return nil, false, nil
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		c.keepLock(context.WithoutCancel(ctx), key, token, done)
	}()

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(done)
			<-stopped
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			release.Run(rctx, c.rdb, []string{key}, token)
		})
	}
	return unlock, true, nil
}

// keepLock renews the lock until done is closed or the lock is lost.
func (c *Cache) keepLock(ctx context.Context, key, token string, done <-chan struct{}) {
	every := c.ttl.Lock / 3
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-done:
			return
		case <-t.C:
			rctx, cancel := context.WithTimeout(ctx, every)
			n, err := extend.Run(rctx, c.rdb, []string{key}, token, c.ttl.Lock.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

// Lock waits for the room lock until ctx is done.
func (c *Cache) Lock(ctx context.Context, roomID string) (func(), error) {
	for {
		unlock, ok, err := c.TryLock(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, roomID)
		case <-time.After(lockRetry):
		}
	}
}
