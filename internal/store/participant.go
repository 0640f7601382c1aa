package store

import (
	"context"
	"fmt"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// SaveParticipants replaces a chat's membership rows in one transaction.
func (db *DB) SaveParticipants(ctx context.Context, chatID string, participants []model.Participant) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (chat_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)`,
			chatID, p.UserID, p.Role, p.JoinedAt); err != nil {
			return fmt.Errorf("insert participant %q: %w", p.UserID, err)
		}
	}
	return tx.Commit()
}

// GetParticipants returns a chat's membership ordered by join time.
func (db *DB) GetParticipants(ctx context.Context, chatID string) ([]model.Participant, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT chat_id, user_id, role, joined_at
		FROM participants WHERE chat_id = ?
		ORDER BY joined_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
