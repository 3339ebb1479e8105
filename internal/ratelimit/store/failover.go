package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var failoverFallbackTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "secgate_ratelimit_store_fallback_total",
		Help: "Total number of store operations served by the in-memory fallback",
	},
	[]string{"operation"},
)

// FailoverStore wraps a shared primary store with a process-local fallback.
// A circuit breaker trips after consecutive primary failures; while open,
// operations go straight to the fallback without paying the primary's
// timeout. Serving from the fallback is a deliberate
// fail-open-for-availability choice: distinct instances then under-enforce
// the global limit, so activations are logged and counted.
type FailoverStore struct {
	primary  Store
	fallback Store
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	logger   *zap.Logger
}

// FailoverConfig holds configuration for the failover store.
type FailoverConfig struct {
	// OpTimeout bounds each primary store call.
	OpTimeout time.Duration

	// MaxFailures is the number of consecutive primary failures that trip
	// the breaker.
	MaxFailures uint32

	// OpenInterval is how long the breaker stays open before probing the
	// primary again.
	OpenInterval time.Duration

	// Logger for degradation warnings.
	Logger *zap.Logger
}

// DefaultFailoverConfig returns a FailoverConfig with default values.
func DefaultFailoverConfig() *FailoverConfig {
	return &FailoverConfig{
		OpTimeout:    500 * time.Millisecond,
		MaxFailures:  3,
		OpenInterval: 15 * time.Second,
	}
}

// NewFailoverStore creates a failover store over the given primary and
// fallback stores.
func NewFailoverStore(primary, fallback Store, config *FailoverConfig) *FailoverStore {
	if config == nil {
		config = DefaultFailoverConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxFailures := config.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ratelimit-store",
		Timeout: config.OpenInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit store breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		timeout:  config.OpTimeout,
		logger:   logger,
	}
}

// Degraded reports whether operations are currently served by the
// fallback store.
func (s *FailoverStore) Degraded() bool {
	return s.breaker.State() != gobreaker.StateClosed
}

// execute runs op against the primary through the breaker with a bounded
// timeout. A key-not-found result is a successful lookup and must neither
// trip the breaker nor trigger the fallback.
func (s *FailoverStore) execute(ctx context.Context, op func(ctx context.Context) (int64, error)) (int64, error, bool) {
	var notFound *ErrKeyNotFound

	result, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		val, opErr := op(opCtx)
		if opErr != nil {
			if nf, ok := opErr.(*ErrKeyNotFound); ok {
				notFound = nf
				return int64(0), nil
			}
			return nil, opErr
		}
		return val, nil
	})
	if err != nil {
		return 0, err, false
	}
	if notFound != nil {
		return 0, notFound, true
	}
	return result.(int64), nil, true
}

// Get implements Store.
func (s *FailoverStore) Get(ctx context.Context, key string) (int64, error) {
	val, err, ok := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return s.primary.Get(ctx, key)
	})
	if ok {
		return val, err
	}

	s.recordFallback("get", err)
	return s.fallback.Get(ctx, key)
}

// Set implements Store.
func (s *FailoverStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	_, err, ok := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return 0, s.primary.Set(ctx, key, value, expiration)
	})
	if ok {
		return err
	}

	s.recordFallback("set", err)
	return s.fallback.Set(ctx, key, value, expiration)
}

// Increment implements Store.
func (s *FailoverStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	val, err, ok := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return s.primary.Increment(ctx, key, delta)
	})
	if ok {
		return val, err
	}

	s.recordFallback("increment", err)
	return s.fallback.Increment(ctx, key, delta)
}

// IncrementWithExpiry implements Store.
func (s *FailoverStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	val, err, ok := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return s.primary.IncrementWithExpiry(ctx, key, delta, expiration)
	})
	if ok {
		return val, err
	}

	s.recordFallback("increment_with_expiry", err)
	return s.fallback.IncrementWithExpiry(ctx, key, delta, expiration)
}

// Delete implements Store.
func (s *FailoverStore) Delete(ctx context.Context, key string) error {
	_, err, ok := s.execute(ctx, func(ctx context.Context) (int64, error) {
		return 0, s.primary.Delete(ctx, key)
	})
	if ok {
		return err
	}

	s.recordFallback("delete", err)
	return s.fallback.Delete(ctx, key)
}

// Close implements Store. Both underlying stores are closed; the first
// error wins.
func (s *FailoverStore) Close() error {
	err := s.primary.Close()
	if cerr := s.fallback.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// recordFallback logs and counts a fallback activation.
func (s *FailoverStore) recordFallback(operation string, err error) {
	failoverFallbackTotal.WithLabelValues(operation).Inc()
	s.logger.Warn("shared rate limit store unavailable, using in-memory fallback",
		zap.String("operation", operation),
		zap.Error(err),
	)
}
