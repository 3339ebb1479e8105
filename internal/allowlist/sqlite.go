package allowlist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite" // SQLite driver
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/secgate-io/secgate/internal/util"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the allow-list database at the given
// DSN and ensures the schema is up to date.
func NewSQLiteStore(dsn string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open allowlist database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to allowlist database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate allowlist schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// migrateSchema creates the necessary tables if they don't exist. The
// partial unique index enforces the (principal, address) uniqueness
// invariant among active entries at the storage layer.
func migrateSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS allowed_ips (
			id TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			last_used_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_allowed_ips_active_pair
			ON allowed_ips(principal_id, ip_address) WHERE is_active = 1;

		CREATE INDEX IF NOT EXISTS idx_allowed_ips_principal
			ON allowed_ips(principal_id);
	`)
	return err
}

// Add implements Store.
func (s *SQLiteStore) Add(ctx context.Context, principalID, ipAddress, description string) (*Entry, error) {
	normalized, err := ValidateAddress(ipAddress)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:          uuid.New().String(),
		PrincipalID: principalID,
		IPAddress:   normalized,
		Description: description,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allowed_ips (id, principal_id, ip_address, description, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		entry.ID, entry.PrincipalID, entry.IPAddress, entry.Description, entry.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already allowed for principal", util.ErrDuplicateEntry, normalized)
		}
		return nil, fmt.Errorf("failed to insert allowlist entry: %w", err)
	}

	return entry, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, principalID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, principal_id, ip_address, description, is_active, last_used_at, created_at
		FROM allowed_ips
		WHERE principal_id = ?
		ORDER BY created_at DESC, id`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan allowlist entries: %w", err)
	}

	return entries, nil
}

// Update implements Store. Only active entries owned by the principal are
// updatable.
func (s *SQLiteStore) Update(ctx context.Context, id, principalID string, patch Patch) (*Entry, error) {
	sets := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*patch.IsActive))
	}

	if len(sets) > 0 {
		args = append(args, id, principalID)
		res, err := s.db.ExecContext(ctx,
			"UPDATE allowed_ips SET "+strings.Join(sets, ", ")+
				" WHERE id = ? AND principal_id = ? AND is_active = 1",
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update allowlist entry: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to update allowlist entry: %w", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: no active entry %s for principal", util.ErrNotFound, id)
		}
	}

	return s.get(ctx, id, principalID)
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id, principalID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM allowed_ips WHERE id = ? AND principal_id = ?",
		id, principalID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove allowlist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove allowlist entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: no entry %s for principal", util.ErrNotFound, id)
	}
	return nil
}

// IsAllowed implements Store. The allow decision is a single consistent
// read; the last-used timestamp update is best-effort and a lost update is
// acceptable.
func (s *SQLiteStore) IsAllowed(ctx context.Context, principalID, ipAddress string) (bool, error) {
	normalized, err := ValidateAddress(ipAddress)
	if err != nil {
		// A non-routable caller address is simply not allowed.
		return false, nil
	}

	var id string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM allowed_ips
		WHERE principal_id = ? AND ip_address = ? AND is_active = 1`,
		principalID, normalized,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check allowlist membership: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE allowed_ips SET last_used_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	); err != nil {
		s.logger.Warn("failed to update allowlist last_used_at",
			zap.String("entry_id", id),
			zap.Error(err),
		)
	}

	return true, nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context, principalID string) (*Stats, error) {
	cutoff := time.Now().UTC().Add(-recentWindow)

	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_active), 0),
			COALESCE(SUM(CASE WHEN last_used_at >= ? THEN 1 ELSE 0 END), 0)
		FROM allowed_ips
		WHERE principal_id = ?`,
		cutoff, principalID,
	).Scan(&stats.Total, &stats.Active, &stats.RecentlyUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compute allowlist stats: %w", err)
	}

	return &stats, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// get fetches a single entry owned by the principal.
func (s *SQLiteStore) get(ctx context.Context, id, principalID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, principal_id, ip_address, description, is_active, last_used_at, created_at
		FROM allowed_ips
		WHERE id = ? AND principal_id = ?`,
		id, principalID,
	)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no entry %s for principal", util.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans one entry row.
func scanEntry(row scanner) (*Entry, error) {
	var (
		entry    Entry
		active   int
		lastUsed sql.NullTime
	)
	if err := row.Scan(
		&entry.ID, &entry.PrincipalID, &entry.IPAddress, &entry.Description,
		&active, &lastUsed, &entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	entry.IsActive = active != 0
	if lastUsed.Valid {
		t := lastUsed.Time
		entry.LastUsedAt = &t
	}
	return &entry, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// boolToInt converts a bool to a SQLite integer.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
