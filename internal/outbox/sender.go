// Package outbox drains queued outgoing messages through the remote
// client and drives their delivery lifecycle.
package outbox

import (
	"context"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/status"
	"github.com/otaviocarvalho/chatsync/internal/store"
	"go.uber.org/zap"
)

// Poster is the slice of the remote client the sender needs.
type Poster interface {
	PostMessage(ctx context.Context, msg *model.Message) (serverID string, err error)
}

const pollInterval = 500 * time.Millisecond

// Sender polls the outbox and posts pending messages. Write-path
// failures are never swallowed: a failed post lands the message in
// failed state with its error recorded, visible to the UI.
type Sender struct {
	db      *store.DB
	poster  Poster
	tracker *status.Tracker
	bus     *bus.Bus
	selfID  string
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, poster Poster, tracker *status.Tracker, b *bus.Bus, selfID string, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:      db,
		poster:  poster,
		tracker: tracker,
		bus:     b,
		selfID:  selfID,
		logger:  logger,
	}
}

// Start begins polling for queued messages. Entries a previous daemon
// left mid-send are put back in the queue first.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	if n, err := s.db.RequeueStuckSending(ctx); err != nil {
		s.logger.Warn("failed to requeue interrupted sends", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("requeued interrupted sends", zap.Int64("count", n))
	}
	go s.loop(ctx)
}

// Stop stops the polling loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(ctx)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) {
	if err := s.db.MarkOutboxSending(ctx, entry.ClientID); err != nil {
		s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_id", entry.ClientID))
		return
	}

	// Optimistic row: the message shows up immediately as sending. A
	// resend reuses the same client id, so this is a no-op then and the
	// tracker moves the failed row back through sending instead.
	msg := &model.Message{
		ClientID:  entry.ClientID,
		ChatID:    entry.ChatID,
		SenderID:  s.selfID,
		Content:   entry.Content,
		Type:      entry.Type,
		CreatedAt: time.Now().UnixMilli(),
		Status:    model.StatusSending,
	}
	if err := s.db.SaveMessage(ctx, msg); err != nil {
		s.logger.Warn("optimistic insert failed", zap.Error(err), zap.String("client_id", entry.ClientID))
	}
	_ = s.tracker.Apply(ctx, entry.ClientID, model.StatusSending, "")
	s.publish("message.queued", entry.ClientID, entry.ChatID, "")

	serverID, err := s.poster.PostMessage(ctx, msg)
	if err != nil {
		s.logger.Error("send failed", zap.Error(err), zap.String("client_id", entry.ClientID))
		_ = s.db.MarkOutboxFailed(ctx, entry.ClientID, err.Error())
		if terr := s.tracker.Fail(ctx, entry.ClientID, err.Error()); terr != nil {
			s.logger.Warn("failed to record failure", zap.Error(terr))
		}
		s.publish("message.send_failed", entry.ClientID, entry.ChatID, err.Error())
		return
	}

	if err := s.db.MarkOutboxSent(ctx, entry.ClientID, serverID); err != nil {
		s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_id", entry.ClientID))
	}
	if err := s.tracker.Ack(ctx, entry.ClientID, serverID); err != nil {
		s.logger.Warn("failed to ack", zap.Error(err), zap.String("client_id", entry.ClientID))
	}

	s.logger.Info("message sent",
		zap.String("client_id", entry.ClientID),
		zap.String("server_id", serverID))
	s.publish("message.send_ack", entry.ClientID, entry.ChatID, serverID)
}

func (s *Sender) publish(kind, clientID, chatID, extra string) {
	s.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"client_id": clientID,
			"chat_id":   chatID,
			"detail":    extra,
		},
	})
}
