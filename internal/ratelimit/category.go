package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/ratelimit/store"
)

// Well-known request categories. Arbitrary additional categories may be
// configured; each category carries its own limit and window.
const (
	CategoryLogin   = "login"
	CategoryGeneral = "general"
)

// CategoryLimits maps category names to their limits.
type CategoryLimits map[string]Limit

// DefaultCategoryLimits returns the default per-category limits.
func DefaultCategoryLimits() CategoryLimits {
	return CategoryLimits{
		CategoryLogin:   {Requests: 1, Window: time.Minute},
		CategoryGeneral: {Requests: 100, Window: time.Minute},
	}
}

// CategoryLimiter tracks request counts per (identity, category) key, each
// category with its own fixed window. All categories share one counter
// store, so a shared store enforces the limits across gateway instances.
type CategoryLimiter struct {
	store  store.Store
	logger *zap.Logger

	mu       sync.RWMutex
	limiters map[string]*FixedWindowLimiter
}

// NewCategoryLimiter creates a CategoryLimiter with the given per-category
// limits. Unknown categories fall back to the general limit.
func NewCategoryLimiter(s store.Store, limits CategoryLimits, logger *zap.Logger) *CategoryLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(limits) == 0 {
		limits = DefaultCategoryLimits()
	}

	limiters := make(map[string]*FixedWindowLimiter, len(limits))
	for category, limit := range limits {
		limiters[category] = NewFixedWindowLimiter(s, limit.Requests, limit.Window, logger)
	}
	if _, ok := limiters[CategoryGeneral]; !ok {
		def := DefaultCategoryLimits()[CategoryGeneral]
		limiters[CategoryGeneral] = NewFixedWindowLimiter(s, def.Requests, def.Window, logger)
	}

	return &CategoryLimiter{
		store:    s,
		logger:   logger,
		limiters: limiters,
	}
}

// SetLimits replaces the per-category limits. Existing window counters keep
// their remaining TTL; only the thresholds change. Safe for concurrent use
// with Check.
func (l *CategoryLimiter) SetLimits(limits CategoryLimits) {
	limiters := make(map[string]*FixedWindowLimiter, len(limits))
	for category, limit := range limits {
		limiters[category] = NewFixedWindowLimiter(l.store, limit.Requests, limit.Window, l.logger)
	}
	if _, ok := limiters[CategoryGeneral]; !ok {
		def := DefaultCategoryLimits()[CategoryGeneral]
		limiters[CategoryGeneral] = NewFixedWindowLimiter(l.store, def.Requests, def.Window, l.logger)
	}

	l.mu.Lock()
	l.limiters = limiters
	l.mu.Unlock()
}

// Check counts a request for the (identity, category) pair and reports the
// admit/deny decision.
func (l *CategoryLimiter) Check(ctx context.Context, identity, category string) (*Result, error) {
	return l.limiterFor(category).Allow(ctx, Key(identity, category))
}

// Reset clears the current window for the (identity, category) pair.
func (l *CategoryLimiter) Reset(ctx context.Context, identity, category string) error {
	return l.limiterFor(category).Reset(ctx, Key(identity, category))
}

// Limit returns the configured limit for a category.
func (l *CategoryLimiter) Limit(category string) *Limit {
	return l.limiterFor(category).GetLimit("")
}

// limiterFor returns the limiter for a category, defaulting to general.
func (l *CategoryLimiter) limiterFor(category string) *FixedWindowLimiter {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limiter, ok := l.limiters[category]; ok {
		return limiter
	}
	return l.limiters[CategoryGeneral]
}

// Key builds the store key for an (identity, category) pair.
func Key(identity, category string) string {
	return fmt.Sprintf("%s:%s", identity, category)
}
