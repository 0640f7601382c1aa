package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// SaveChat upserts a chat record by id.
func (db *DB) SaveChat(ctx context.Context, c *model.Chat) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	participants, err := json.Marshal(c.ParticipantIDs)
	if err != nil {
		participants = []byte("[]")
	}
	var lastMsg []byte
	var lastMsgAt int64
	if c.LastMessage != nil {
		lastMsg, _ = json.Marshal(c.LastMessage)
		lastMsgAt = c.LastMessage.CreatedAt
	}
	now := time.Now().UnixMilli()
	updatedAt := c.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO chats (id, kind, name, avatar, participant_ids, last_message, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			avatar = excluded.avatar,
			participant_ids = excluded.participant_ids,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.ID, c.Kind, c.Name, c.Avatar, string(participants),
		nullIfEmpty(lastMsg), lastMsgAt, c.UnreadCount, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// GetChats returns all cached chats ordered by last message time
// descending.
func (db *DB) GetChats(ctx context.Context) ([]model.Chat, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, name, avatar, participant_ids, COALESCE(last_message, ''), unread_count, updated_at
		FROM chats
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by id, or nil when absent.
func (db *DB) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	row := db.QueryRowContext(ctx, `
		SELECT id, kind, name, avatar, participant_ids, COALESCE(last_message, ''), unread_count, updated_at
		FROM chats WHERE id = ?`, id)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteChat removes a chat and its participants. Messages keep their
// rows; duplicate direct chats dropped by the merge engine point at the
// surviving chat through their own chat id.
func (db *DB) DeleteChat(ctx context.Context, id string) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if _, err := db.ExecContext(ctx, `DELETE FROM participants WHERE chat_id = ?`, id); err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// MarkChatRead zeroes the unread counter.
func (db *DB) MarkChatRead(ctx context.Context, id string) error {
	return db.UpdateUnreadCount(ctx, id, 0)
}

// UpdateUnreadCount sets the unread counter, clamped at zero.
func (db *DB) UpdateUnreadCount(ctx context.Context, id string, count int) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if count < 0 {
		count = 0
	}
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE chats SET unread_count = ?, updated_at = ? WHERE id = ?`, count, now, id)
	if err != nil {
		return fmt.Errorf("update unread count: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*model.Chat, error) {
	var c model.Chat
	var participants, lastMsg string
	if err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.Avatar, &participants,
		&lastMsg, &c.UnreadCount, &c.UpdatedAt); err != nil {
		return nil, err
	}
	// Malformed cached JSON degrades to empty rather than failing the read.
	if participants != "" {
		_ = json.Unmarshal([]byte(participants), &c.ParticipantIDs)
	}
	if lastMsg != "" {
		var lm model.LastMessage
		if err := json.Unmarshal([]byte(lastMsg), &lm); err == nil {
			c.LastMessage = &lm
		}
	}
	return &c, nil
}

func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
