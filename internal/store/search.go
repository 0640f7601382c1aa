package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// SearchMessages finds messages whose content contains the query,
// case-insensitively. An empty chatID searches every chat.
func (db *DB) SearchMessages(ctx context.Context, query, chatID string, limit int) ([]model.Message, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT client_id, COALESCE(server_id, ''), chat_id, sender_id, content, type, created_at, status, error, reactions, edited_at
		FROM messages
		WHERE content LIKE ? ESCAPE '\'`
	args := []any{likePattern(query)}
	if chatID != "" {
		q += " AND chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var reactions string
		if err := rows.Scan(&m.ClientID, &m.ServerID, &m.ChatID, &m.SenderID,
			&m.Content, &m.Type, &m.CreatedAt, &m.Status, &m.Error, &reactions, &m.EditedAt); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		m.Reactions = decodeReactions(reactions)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SearchChats finds chats whose name contains the query,
// case-insensitively.
func (db *DB) SearchChats(ctx context.Context, query string, limit int) ([]model.Chat, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, kind, name, avatar, participant_ids, COALESCE(last_message, ''), unread_count, updated_at
		FROM chats
		WHERE name LIKE ? ESCAPE '\'
		ORDER BY last_message_at DESC
		LIMIT ?`, likePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search chats: %w", err)
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

// likePattern wraps the query for substring matching. LIKE is
// case-insensitive for ASCII in SQLite, which matches the search
// contract here.
func likePattern(query string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
	return "%" + escaped + "%"
}
