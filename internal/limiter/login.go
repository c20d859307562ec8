package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimited is returned when a username has used up its failure budget.
	ErrLimited = errors.New("login attempts exceeded")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("login limiter unavailable")
)

const keyPrefix = "auth:login:fail:"

// LoginLimiter counts failed logins per username in a fixed window.
type LoginLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

// NewLoginLimiter creates a limiter allowing maxAttempts failures per window.
func NewLoginLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{redis: client, maxAttempts: maxAttempts, window: window}
}

func key(username string) string {
	return keyPrefix + username
}

// Check returns ErrLimited if username has already failed maxAttempts times
// in the current window.
func (l *LoginLimiter) Check(ctx context.Context, username string) error {
	count, err := l.redis.Get(ctx, key(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return ErrLimited
	}
	return nil
}

// RecordFailure counts one failed attempt. The window starts at the first
// failure. INCR and EXPIRE NX run in one MULTI/EXEC, so a counter without
// an expiry gets one on the next failure.
func (l *LoginLimiter) RecordFailure(ctx context.Context, username string) error {
	k := key(username)
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, username string) error {
	if err := l.redis.Del(ctx, key(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RetryAfter returns how long until the window for username closes.
func (l *LoginLimiter) RetryAfter(ctx context.Context, username string) time.Duration {
	ttl, err := l.redis.TTL(ctx, key(username)).Result()
	if err != nil || ttl < 0 {
		return l.window
	}
	return ttl
}
