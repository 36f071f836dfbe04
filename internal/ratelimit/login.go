package ratelimit

import (
	"context"
	"errors"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// LoginLimiter caps credential attempts with a fixed ulule rate such as "5-M".
type LoginLimiter struct {
	limiter *limiter.Limiter
	now     func() time.Time
}

// NewLoginLimiter parses the formatted rate and binds it to store.
func NewLoginLimiter(store limiter.Store, formatted string) (*LoginLimiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: limiter store is required")
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	return &LoginLimiter{limiter: limiter.New(store, rate), now: time.Now}, nil
}

// Take consumes one attempt for key. When the rate is exhausted it reports
// how long the caller should wait.
func (l *LoginLimiter) Take(ctx context.Context, key string) (bool, time.Duration, error) {
	lc, err := l.limiter.Get(ctx, key)
	if err != nil {
		return true, 0, err
	}
	if !lc.Reached {
		return true, 0, nil
	}
	wait := time.Unix(lc.Reset, 0).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}

// Reset forgets previous attempts for key.
func (l *LoginLimiter) Reset(ctx context.Context, key string) error {
	_, err := l.limiter.Reset(ctx, key)
	return err
}
