package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AddReaction increments the count for an emoji on a message, addressed
// by server id or client id. Read-modify-write on the serialized map;
// the single-connection store serializes concurrent callers.
func (db *DB) AddReaction(ctx context.Context, messageID, emoji string) error {
	return db.mutateReactions(ctx, messageID, func(m map[string]int) {
		m[emoji]++
	})
}

// RemoveReaction decrements the count for an emoji, removing the key at
// zero. Removing an absent reaction is a no-op.
func (db *DB) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	return db.mutateReactions(ctx, messageID, func(m map[string]int) {
		if m[emoji] <= 1 {
			delete(m, emoji)
			return
		}
		m[emoji]--
	})
}

func (db *DB) mutateReactions(ctx context.Context, messageID string, fn func(map[string]int)) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	var clientID, raw string
	err := db.QueryRowContext(ctx, `
		SELECT client_id, reactions FROM messages WHERE server_id = ? OR client_id = ?`,
		messageID, messageID).Scan(&clientID, &raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("reaction: no message with id %q", messageID)
	}
	if err != nil {
		return fmt.Errorf("read reactions: %w", err)
	}

	reactions := decodeReactions(raw)
	if reactions == nil {
		reactions = make(map[string]int)
	}
	fn(reactions)

	encoded, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		UPDATE messages SET reactions = ?, updated_at = ? WHERE client_id = ?`,
		string(encoded), now, clientID)
	if err != nil {
		return fmt.Errorf("write reactions: %w", err)
	}
	return nil
}
