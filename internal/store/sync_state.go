package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// Sync state keys
const (
	KeyLastImport = "last_import"
	KeyLastFetch  = "last_fetch"
)

// GetSyncState retrieves a sync state value by key
// Returns empty string if key doesn't exist
func (db *DB) GetSyncState(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `
		SELECT value FROM sync_state WHERE key = ?
	`, key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, eris.Wrapf(err, "reading sync state %s", key)
}

// SetSyncState sets a sync state value
func (db *DB) SetSyncState(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return eris.Wrapf(err, "writing sync state %s", key)
}

// GetSyncTime reads a timestamp stored under key. The zero time means never.
func (db *DB) GetSyncTime(ctx context.Context, key string) (time.Time, error) {
	v, err := db.GetSyncState(ctx, key)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parsing sync time %s", key)
	}
	return t, nil
}

// SetSyncTime stores a timestamp under key.
func (db *DB) SetSyncTime(ctx context.Context, key string, t time.Time) error {
	return db.SetSyncState(ctx, key, t.UTC().Format(time.RFC3339))
}
