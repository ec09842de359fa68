package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over
var ErrLockNotHeld = errors.New("redis lock not held")

// Locker hands out cross-process mutual exclusion keyed by name.
// With Redis disabled every Acquire succeeds immediately.
type Locker struct {
	client *Client
	prefix string
	retry  time.Duration
}

// Lock is a held lock; Release must be called exactly once
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// NewLocker creates a locker namespaced by prefix
func NewLocker(client *Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix, retry: 100 * time.Millisecond}
}

var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Acquire blocks until the named lock is obtained or ctx is done.
// ttl bounds how long a crashed holder can keep others out.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{
		locker: l,
		key:    fmt.Sprintf("%s:lock:%s", l.prefix, name),
		token:  uuid.NewString(),
	}
	if !l.client.Enabled() {
		return lock, nil
	}

	for {
		ok, err := l.client.Redis().SetNX(ctx, lock.key, lock.token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}
		if ok {
			return lock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Release frees the lock if this holder still owns it
func (k *Lock) Release(ctx context.Context) error {
	if !k.locker.client.Enabled() {
		return nil
	}

	n, err := releaseScript.Run(ctx, k.locker.client.Redis(), []string{k.key}, k.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
