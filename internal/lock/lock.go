// Package lock implements short-lived mutual exclusion on top of Redis keys.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder owns the key.
var ErrNotAcquired = errors.New("lock: not acquired")

// ErrLeaseLost means the lease expired or was taken over before it was
// released or extended.
var ErrLeaseLost = errors.New("lock: lease lost")

// Owner-checked delete and expire. Both return 0 when the token no longer
// matches.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

const defaultTTL = 30 * time.Second

// Locker hands out leases on Prefix+key.
type Locker struct {
	R      redis.Cmdable
	Prefix string
	// Poll is the wait between attempts in Wait. Defaults to 50ms.
	Poll time.Duration
}

// Lease is a held lock. It stays valid until Release or until its TTL runs
// out.
type Lease struct {
	r     redis.Cmdable
	key   string
	token string
}

// Key returns the full Redis key of the lease.
func (l *Lease) Key() string { return l.key }

// Acquire takes the lock if it is free and returns ErrNotAcquired otherwise.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	lease := &Lease{r: l.R, key: l.Prefix + key, token: uuid.NewString()}
	ok, err := l.R.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return lease, nil
}

// Wait polls Acquire until it succeeds or ctx is done.
func (l Locker) Wait(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	poll := l.Poll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lease, err := l.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrNotAcquired) {
			return lease, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Do runs fn under the lock when it is free right now.
func (l Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer lease.Release(context.WithoutCancel(ctx))
	return fn(ctx)
}

// Extend pushes the expiry of a lease still owned by the caller.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.r, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release deletes the key if the lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.r, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}
