package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails every operation until healed.
type flakyStore struct {
	inner   Store
	failing bool
}

var errStoreDown = errors.New("store down")

func (f *flakyStore) Get(ctx context.Context, key string) (int64, error) {
	if f.failing {
		return 0, errStoreDown
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if f.failing {
		return errStoreDown
	}
	return f.inner.Set(ctx, key, value, expiration)
}

func (f *flakyStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if f.failing {
		return 0, errStoreDown
	}
	return f.inner.Increment(ctx, key, delta)
}

func (f *flakyStore) IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error) {
	if f.failing {
		return 0, errStoreDown
	}
	return f.inner.IncrementWithExpiry(ctx, key, delta, expiration)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if f.failing {
		return errStoreDown
	}
	return f.inner.Delete(ctx, key)
}

func (f *flakyStore) Close() error {
	return f.inner.Close()
}

func newTestFailoverStore(t *testing.T, failing bool) (*FailoverStore, *flakyStore, *MemoryStore) {
	t.Helper()

	primary := &flakyStore{inner: NewMemoryStore(), failing: failing}
	fallback := NewMemoryStore()

	s := NewFailoverStore(primary, fallback, &FailoverConfig{
		OpTimeout:    100 * time.Millisecond,
		MaxFailures:  2,
		OpenInterval: time.Second,
	})
	t.Cleanup(func() { _ = s.Close() })

	return s, primary, fallback
}

func TestFailoverStoreHealthyPrimary(t *testing.T) {
	s, _, fallback := newTestFailoverStore(t, false)
	ctx := context.Background()

	value, err := s.IncrementWithExpiry(ctx, "key", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	// The fallback stays untouched while the primary serves.
	_, err = fallback.Get(ctx, "key")
	assert.True(t, IsKeyNotFound(err))

	assert.False(t, s.Degraded())
}

func TestFailoverStoreKeyNotFoundIsNotAFailure(t *testing.T) {
	s, _, _ := newTestFailoverStore(t, false)
	ctx := context.Background()

	// Repeated misses must not trip the breaker.
	for i := 0; i < 10; i++ {
		_, err := s.Get(ctx, "missing")
		assert.True(t, IsKeyNotFound(err))
	}

	assert.False(t, s.Degraded())
}

func TestFailoverStoreFallsBackOnPrimaryFailure(t *testing.T) {
	s, _, _ := newTestFailoverStore(t, true)
	ctx := context.Background()

	// Every failed call is served by the fallback, so counting continues.
	for want := int64(1); want <= 3; want++ {
		value, err := s.IncrementWithExpiry(ctx, "key", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, value)
	}

	// Two consecutive failures tripped the breaker.
	assert.True(t, s.Degraded())
}

func TestFailoverStoreRecovery(t *testing.T) {
	primary := &flakyStore{inner: NewMemoryStore(), failing: true}
	fallback := NewMemoryStore()

	s := NewFailoverStore(primary, fallback, &FailoverConfig{
		OpTimeout:    100 * time.Millisecond,
		MaxFailures:  2,
		OpenInterval: 50 * time.Millisecond,
	})
	defer s.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.IncrementWithExpiry(ctx, "key", 1, time.Minute)
		require.NoError(t, err)
	}
	require.True(t, s.Degraded())

	primary.failing = false
	time.Sleep(100 * time.Millisecond)

	// The half-open probe succeeds and the primary takes over again.
	_, err := s.IncrementWithExpiry(ctx, "key", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, s.Degraded())
}

func TestFailoverStoreSetAndDelete(t *testing.T) {
	s, _, _ := newTestFailoverStore(t, true)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "key", 9, time.Minute))

	value, err := s.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, int64(9), value)

	require.NoError(t, s.Delete(ctx, "key"))

	_, err = s.Get(ctx, "key")
	assert.True(t, IsKeyNotFound(err))
}
