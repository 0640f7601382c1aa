package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// SaveMessage inserts a message keyed by client id. The call is a no-op
// when a row with the same client id or server id already exists; the
// UNIQUE constraints back the existence check up.
func (db *DB) SaveMessage(ctx context.Context, m *model.Message) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	var exists int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE client_id = ? OR (server_id IS NOT NULL AND server_id = NULLIF(?, ''))`,
		m.ClientID, m.ServerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("message exists check: %w", err)
	}
	if exists > 0 {
		return nil
	}

	reactions, err := json.Marshal(m.Reactions)
	if err != nil {
		reactions = []byte("{}")
	}
	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (client_id, server_id, chat_id, sender_id, content, type, created_at, status, error, reactions, edited_at, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO NOTHING`,
		m.ClientID, m.ServerID, m.ChatID, m.SenderID, m.Content, m.Type,
		m.CreatedAt, m.Status, m.Error, string(reactions), m.EditedAt, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateMessageStatus updates delivery status addressed by server id,
// falling back to client id when no row carries that server id. The
// fallback is mandatory: acks for optimistic sends arrive before the
// local row has learned its server id.
func (db *DB) UpdateMessageStatus(ctx context.Context, id string, status model.MessageStatus, errMsg string) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET status = ?, error = ?, updated_at = ? WHERE server_id = ?`,
		status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("update status by server id: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	res, err = db.ExecContext(ctx, `
		UPDATE messages SET status = ?, error = ?, updated_at = ? WHERE client_id = ?`,
		status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("update status by client id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update status: no message with id %q", id)
	}
	return nil
}

// AttachServerID records the server-assigned id on the client-id-addressed
// row. No new row is created.
func (db *DB) AttachServerID(ctx context.Context, clientID, serverID string) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET server_id = NULLIF(?, ''), updated_at = ? WHERE client_id = ?`,
		serverID, now, clientID)
	if err != nil {
		return fmt.Errorf("attach server id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attach server id: no message with client id %q", clientID)
	}
	return nil
}

// GetMessages returns a chat's messages ordered by creation time
// ascending. A malformed reaction map degrades to empty rather than
// failing the read.
func (db *DB) GetMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT client_id, COALESCE(server_id, ''), chat_id, sender_id, content, type, created_at, status, error, reactions, edited_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var reactions string
		if err := rows.Scan(&m.ClientID, &m.ServerID, &m.ChatID, &m.SenderID,
			&m.Content, &m.Type, &m.CreatedAt, &m.Status, &m.Error, &reactions, &m.EditedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Reactions = decodeReactions(reactions)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage looks a message up by server id or client id.
func (db *DB) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	var m model.Message
	var reactions string
	err := db.QueryRowContext(ctx, `
		SELECT client_id, COALESCE(server_id, ''), chat_id, sender_id, content, type, created_at, status, error, reactions, edited_at
		FROM messages
		WHERE server_id = ? OR client_id = ?`, id, id).
		Scan(&m.ClientID, &m.ServerID, &m.ChatID, &m.SenderID,
			&m.Content, &m.Type, &m.CreatedAt, &m.Status, &m.Error, &reactions, &m.EditedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	m.Reactions = decodeReactions(reactions)
	return &m, nil
}

func decodeReactions(raw string) map[string]int {
	if raw == "" {
		return nil
	}
	var out map[string]int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
