package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetSyncState upserts a sync checkpoint value.
func (db *DB) SetSyncState(ctx context.Context, key, value string) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	if err != nil {
		return fmt.Errorf("set sync state: %w", err)
	}
	return nil
}

// GetSyncState reads a checkpoint value, empty when unset.
func (db *DB) GetSyncState(ctx context.Context, key string) (string, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get sync state: %w", err)
	}
	return value, nil
}
