package allowlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secgate-io/secgate/internal/util"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLiteStoreAdd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("creates an active entry", func(t *testing.T) {
		entry, err := s.Add(ctx, "user-1", "192.0.2.1", "home office")
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, "user-1", entry.PrincipalID)
		assert.Equal(t, "192.0.2.1", entry.IPAddress)
		assert.Equal(t, "home office", entry.Description)
		assert.True(t, entry.IsActive)
		assert.Nil(t, entry.LastUsedAt)
	})

	t.Run("normalizes the address", func(t *testing.T) {
		entry, err := s.Add(ctx, "user-1", "::ffff:192.0.2.2", "")
		require.NoError(t, err)
		assert.Equal(t, "192.0.2.2", entry.IPAddress)
	})

	t.Run("rejects a duplicate active pair", func(t *testing.T) {
		_, err := s.Add(ctx, "user-1", "192.0.2.1", "again")
		assert.ErrorIs(t, err, util.ErrDuplicateEntry)
	})

	t.Run("same address for another principal is fine", func(t *testing.T) {
		_, err := s.Add(ctx, "user-2", "192.0.2.1", "")
		assert.NoError(t, err)
	})

	t.Run("rejects invalid addresses", func(t *testing.T) {
		_, err := s.Add(ctx, "user-1", "127.0.0.1", "")
		assert.ErrorIs(t, err, util.ErrInvalidAddress)
	})

	t.Run("deactivated entry frees the pair", func(t *testing.T) {
		entry, err := s.Add(ctx, "user-3", "198.51.100.1", "")
		require.NoError(t, err)

		inactive := false
		_, err = s.Update(ctx, entry.ID, "user-3", Patch{IsActive: &inactive})
		require.NoError(t, err)

		_, err = s.Add(ctx, "user-3", "198.51.100.1", "replacement")
		assert.NoError(t, err)
	})
}

func TestSQLiteStoreList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries, err := s.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Add(ctx, "user-1", "192.0.2.1", "first")
	require.NoError(t, err)
	_, err = s.Add(ctx, "user-1", "192.0.2.2", "second")
	require.NoError(t, err)
	_, err = s.Add(ctx, "user-2", "192.0.2.3", "other principal")
	require.NoError(t, err)

	entries, err = s.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, "user-1", entry.PrincipalID)
	}
}

func TestSQLiteStoreUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Add(ctx, "user-1", "192.0.2.1", "old note")
	require.NoError(t, err)

	t.Run("patches the description", func(t *testing.T) {
		note := "new note"
		updated, err := s.Update(ctx, entry.ID, "user-1", Patch{Description: &note})
		require.NoError(t, err)
		assert.Equal(t, "new note", updated.Description)
		assert.True(t, updated.IsActive)
	})

	t.Run("wrong principal gets not found", func(t *testing.T) {
		note := "hijack"
		_, err := s.Update(ctx, entry.ID, "user-2", Patch{Description: &note})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("unknown id gets not found", func(t *testing.T) {
		note := "nope"
		_, err := s.Update(ctx, "missing-id", "user-1", Patch{Description: &note})
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("deactivation", func(t *testing.T) {
		inactive := false
		updated, err := s.Update(ctx, entry.ID, "user-1", Patch{IsActive: &inactive})
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
	})
}

func TestSQLiteStoreRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Add(ctx, "user-1", "192.0.2.1", "")
	require.NoError(t, err)

	t.Run("wrong principal cannot remove", func(t *testing.T) {
		assert.ErrorIs(t, s.Remove(ctx, entry.ID, "user-2"), util.ErrNotFound)
	})

	t.Run("owner removes", func(t *testing.T) {
		require.NoError(t, s.Remove(ctx, entry.ID, "user-1"))

		entries, err := s.List(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("second removal gets not found", func(t *testing.T) {
		assert.ErrorIs(t, s.Remove(ctx, entry.ID, "user-1"), util.ErrNotFound)
	})
}

func TestSQLiteStoreIsAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Add(ctx, "user-1", "192.0.2.1", "")
	require.NoError(t, err)

	t.Run("active entry allows", func(t *testing.T) {
		allowed, err := s.IsAllowed(ctx, "user-1", "192.0.2.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("hit records last use", func(t *testing.T) {
		entries, err := s.List(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.NotNil(t, entries[0].LastUsedAt)
	})

	t.Run("unlisted address denies", func(t *testing.T) {
		allowed, err := s.IsAllowed(ctx, "user-1", "198.51.100.9")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("other principal denies", func(t *testing.T) {
		allowed, err := s.IsAllowed(ctx, "user-2", "192.0.2.1")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("mapped form matches the stored entry", func(t *testing.T) {
		allowed, err := s.IsAllowed(ctx, "user-1", "::ffff:192.0.2.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("invalid caller address denies without error", func(t *testing.T) {
		allowed, err := s.IsAllowed(ctx, "user-1", "unknown")
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("inactive entry denies", func(t *testing.T) {
		inactive := false
		_, err := s.Update(ctx, entry.ID, "user-1", Patch{IsActive: &inactive})
		require.NoError(t, err)

		allowed, err := s.IsAllowed(ctx, "user-1", "192.0.2.1")
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestSQLiteStoreStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)

	first, err := s.Add(ctx, "user-1", "192.0.2.1", "")
	require.NoError(t, err)
	_, err = s.Add(ctx, "user-1", "192.0.2.2", "")
	require.NoError(t, err)

	inactive := false
	_, err = s.Update(ctx, first.ID, "user-1", Patch{IsActive: &inactive})
	require.NoError(t, err)

	// A membership hit marks the entry recently used.
	_, err = s.IsAllowed(ctx, "user-1", "192.0.2.2")
	require.NoError(t, err)

	stats, err = s.Stats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.RecentlyUsed)
}
