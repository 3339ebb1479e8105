package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/ratelimit/store"
)

// FixedWindowLimiter implements the fixed window rate limiting algorithm on
// top of a counter store. Time is divided into fixed windows; every request
// increments the counter for the current window atomically and is blocked
// when the new count exceeds the limit. Counters expire with the window, so
// a fresh window always starts at one.
type FixedWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewFixedWindowLimiter creates a new fixed window rate limiter backed by
// the given store.
func NewFixedWindowLimiter(s store.Store, limit int, window time.Duration, logger *zap.Logger) *FixedWindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FixedWindowLimiter{
		store:  s,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN implements Limiter.
func (l *FixedWindowLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	now := time.Now()
	windowStart := l.getWindowStart(now)
	windowKey := l.windowKey(key, windowStart)

	// Single atomic round trip: increment first, then compare against the
	// limit. The counter may run past the limit for blocked requests; the
	// window expiry resets it either way.
	expiration := l.window + time.Second // buffer for clock skew
	newCount, err := l.store.IncrementWithExpiry(ctx, windowKey, int64(n), expiration)
	if err != nil {
		return nil, fmt.Errorf("rate limit increment: %w", err)
	}

	allowed := int(newCount) <= l.limit

	remaining := l.limit - int(newCount)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := windowStart.Add(l.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	var retryAfter time.Duration
	if !allowed {
		retryAfter = resetAfter
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}, nil
}

// GetLimit implements Limiter.
func (l *FixedWindowLimiter) GetLimit(key string) *Limit {
	return &Limit{
		Requests: l.limit,
		Window:   l.window,
	}
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	windowStart := l.getWindowStart(time.Now())
	if err := l.store.Delete(ctx, l.windowKey(key, windowStart)); err != nil {
		l.logger.Warn("failed to delete window counter", zap.Error(err))
		return err
	}
	return nil
}

// getWindowStart returns the start time of the window containing t.
func (l *FixedWindowLimiter) getWindowStart(t time.Time) time.Time {
	windowNanos := l.window.Nanoseconds()
	return time.Unix(0, (t.UnixNano()/windowNanos)*windowNanos)
}

// windowKey builds the store key for a window.
func (l *FixedWindowLimiter) windowKey(key string, windowStart time.Time) string {
	return fmt.Sprintf("%s:fw:%d", key, windowStart.UnixNano())
}
