package store

import (
	"context"
	"fmt"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

// OutboxEntry is a pending outgoing message.
type OutboxEntry struct {
	ClientID string
	ChatID   string
	Content  string
	Type     model.MessageType
	Status   string // queued, sending, sent, failed
	Error    string
	ServerID string
}

// QueueOutbox adds a message to the send outbox. Re-queueing an existing
// client id resets a failed attempt back to queued (resend reuses the
// original client id).
func (db *DB) QueueOutbox(ctx context.Context, clientID, chatID, content string, msgType model.MessageType) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO outbox (client_id, chat_id, content, type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			status = 'queued',
			error = '',
			updated_at = excluded.updated_at`,
		clientID, chatID, content, msgType, now, now)
	if err != nil {
		return fmt.Errorf("queue outbox: %w", err)
	}
	return nil
}

// MarkOutboxSending moves an entry to 'sending'.
func (db *DB) MarkOutboxSending(ctx context.Context, clientID string) error {
	return db.setOutboxStatus(ctx, clientID, "sending", "", "")
}

// MarkOutboxSent records the server-assigned id and moves the entry to
// 'sent'.
func (db *DB) MarkOutboxSent(ctx context.Context, clientID, serverID string) error {
	return db.setOutboxStatus(ctx, clientID, "sent", "", serverID)
}

// MarkOutboxFailed moves an entry to 'failed' with the error string.
func (db *DB) MarkOutboxFailed(ctx context.Context, clientID, errMsg string) error {
	return db.setOutboxStatus(ctx, clientID, "failed", errMsg, "")
}

func (db *DB) setOutboxStatus(ctx context.Context, clientID, status, errMsg, serverID string) error {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	var err error
	if serverID != "" {
		_, err = db.ExecContext(ctx, `
			UPDATE outbox SET status = ?, error = ?, server_id = ?, updated_at = ? WHERE client_id = ?`,
			status, errMsg, serverID, now, clientID)
	} else {
		_, err = db.ExecContext(ctx, `
			UPDATE outbox SET status = ?, error = ?, updated_at = ? WHERE client_id = ?`,
			status, errMsg, now, clientID)
	}
	if err != nil {
		return fmt.Errorf("outbox %s: %w", status, err)
	}
	return nil
}

// RequeueStuckSending returns in-flight entries to 'queued'. The
// profile lock guarantees a single daemon, so at startup any row still
// marked 'sending' is a leftover from a crash mid-send, never a live
// attempt.
func (db *DB) RequeueStuckSending(ctx context.Context) (int64, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE outbox SET status = 'queued', updated_at = ? WHERE status = 'sending'`, now)
	if err != nil {
		return 0, fmt.Errorf("requeue stuck outbox: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingOutbox returns queued entries in enqueue order.
func (db *DB) PendingOutbox(ctx context.Context) ([]OutboxEntry, error) {
	ctx, cancel := db.bound(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT client_id, chat_id, content, type, status, error, server_id
		FROM outbox WHERE status = 'queued' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ClientID, &e.ChatID, &e.Content, &e.Type, &e.Status, &e.Error, &e.ServerID); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
