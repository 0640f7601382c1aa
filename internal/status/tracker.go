package status

import (
	"context"
	"fmt"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/store"
	"go.uber.org/zap"
)

// Tracker applies delivery transitions and their persistence side
// effects. All writes address the message by server id first with a
// mandatory client id fallback, so acks racing the local row are safe.
type Tracker struct {
	db     *store.DB
	bus    *bus.Bus
	selfID string
	logger *zap.Logger
}

// NewTracker creates a tracker. selfID identifies the local user, which
// decides whether a seen transition touches unread counts.
func NewTracker(db *store.DB, b *bus.Bus, selfID string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{db: db, bus: b, selfID: selfID, logger: logger}
}

// Apply requests a transition for the message addressed by id (server or
// client). Regressions are ignored: the stored status is left untouched
// and no event is published.
func (t *Tracker) Apply(ctx context.Context, id string, requested model.MessageStatus, errMsg string) error {
	msg, err := t.db.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("load message %q: %w", id, err)
	}
	if msg == nil {
		return fmt.Errorf("status: no message with id %q", id)
	}
	if IsTerminalForward(msg.Status) {
		t.logger.Debug("message already terminal",
			zap.String("id", id),
			zap.String("requested", string(requested)))
		return nil
	}

	next, applied := Next(msg.Status, requested)
	if !applied {
		t.logger.Debug("status transition ignored",
			zap.String("id", id),
			zap.String("from", string(msg.Status)),
			zap.String("requested", string(requested)))
		return nil
	}

	if next != model.StatusFailed {
		errMsg = ""
	}
	if err := t.db.UpdateMessageStatus(ctx, id, next, errMsg); err != nil {
		return fmt.Errorf("persist status: %w", err)
	}

	// A seen transition on a message we received means the local user
	// read the chat; zero its unread counter. Sender-side seen (the
	// counterparty read our message) leaves counters alone.
	if next == model.StatusSeen && msg.SenderID != t.selfID {
		if err := t.db.MarkChatRead(ctx, msg.ChatID); err != nil {
			t.logger.Warn("failed to clear unread count", zap.Error(err), zap.String("chat_id", msg.ChatID))
		}
	}

	t.publish("message.status_changed", map[string]string{
		"id":      id,
		"chat_id": msg.ChatID,
		"from":    string(msg.Status),
		"to":      string(next),
	})
	return nil
}

// Ack handles the server acknowledging an optimistic send: the
// client-id-addressed row learns its server id and advances to sent,
// without creating a duplicate row.
func (t *Tracker) Ack(ctx context.Context, clientID, serverID string) error {
	if err := t.db.AttachServerID(ctx, clientID, serverID); err != nil {
		return err
	}
	return t.Apply(ctx, clientID, model.StatusSent, "")
}

// Fail marks a send attempt failed with the error string. Only messages
// still in sending or sent can fail.
func (t *Tracker) Fail(ctx context.Context, id, errMsg string) error {
	return t.Apply(ctx, id, model.StatusFailed, errMsg)
}

func (t *Tracker) publish(kind string, payload any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
