// Package allowlist persists per-principal IP allow-list entries and
// answers membership checks for the privileged-route gate.
package allowlist

import (
	"context"
	"time"
)

// Entry is a single allow-list record owned by a principal.
type Entry struct {
	// ID is the entry identifier.
	ID string `json:"id"`

	// PrincipalID is the owning principal.
	PrincipalID string `json:"principal_id"`

	// IPAddress is the normalized allowed address.
	IPAddress string `json:"ip_address"`

	// Description is an optional operator note.
	Description string `json:"description,omitempty"`

	// IsActive soft-disables the entry without deleting it.
	IsActive bool `json:"is_active"`

	// LastUsedAt is the last time a membership check hit this entry.
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// CreatedAt is when the entry was added.
	CreatedAt time.Time `json:"created_at"`
}

// Patch carries partial updates for an entry. Nil fields are unchanged.
type Patch struct {
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// Stats summarizes a principal's allow-list.
type Stats struct {
	// Total is the number of entries, active or not.
	Total int `json:"total"`

	// Active is the number of active entries.
	Active int `json:"active"`

	// RecentlyUsed is the number of entries hit within the last 7 days.
	RecentlyUsed int `json:"recently_used"`
}

// recentWindow is the lookback for Stats.RecentlyUsed.
const recentWindow = 7 * 24 * time.Hour

// Store persists and queries allow-list entries.
type Store interface {
	// Add creates an active entry. Fails with ErrDuplicateEntry when the
	// (principal, address) pair already has an active entry, and with
	// ErrInvalidAddress when the address fails validation.
	Add(ctx context.Context, principalID, ipAddress, description string) (*Entry, error)

	// List returns all entries owned by the principal, newest first.
	List(ctx context.Context, principalID string) ([]*Entry, error)

	// Update applies a patch to an active entry owned by the principal.
	// Fails with ErrNotFound when no such entry exists.
	Update(ctx context.Context, id, principalID string, patch Patch) (*Entry, error)

	// Remove deletes an entry owned by the principal.
	Remove(ctx context.Context, id, principalID string) error

	// IsAllowed reports whether the address has an active entry for the
	// principal. A hit updates the entry's LastUsedAt best-effort; the
	// boolean reflects a single consistent read regardless.
	IsAllowed(ctx context.Context, principalID, ipAddress string) (bool, error)

	// Stats summarizes the principal's entries.
	Stats(ctx context.Context, principalID string) (*Stats, error)

	// Close releases store resources.
	Close() error
}
