// Package sync drives reconciliation between the local store, the
// remote chat API and the realtime channel, and owns the canonical
// in-memory chat list served to consumers.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/merge"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/realtime"
	"github.com/otaviocarvalho/chatsync/internal/remote"
	"github.com/otaviocarvalho/chatsync/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RemoteAPI is the slice of the remote client the engine needs. Kept
// narrow so tests can fake the network.
type RemoteAPI interface {
	ListAllChats(ctx context.Context) ([]model.Chat, error)
	LatestMessage(ctx context.Context, chatID string) (*model.Message, error)
}

const (
	// DefaultInterval is the periodic reconcile cadence, catching any
	// realtime events lost while the channel was down.
	DefaultInterval = 45 * time.Second
	// backfillConcurrency bounds the parallel latest-message fetches in
	// a reconcile cycle.
	backfillConcurrency = 4
)

// Engine is the sync orchestrator. All mutations to the canonical set
// flow through the merge engine's timestamp-based resolution, so a slow
// reconcile cycle can never overwrite a newer realtime delta.
type Engine struct {
	db     *store.DB
	remote RemoteAPI
	bus    *bus.Bus
	logger *zap.Logger
	selfID string

	interval time.Duration

	mu        sync.RWMutex
	canonical []model.Chat
	syncErr   error

	cancel context.CancelFunc
}

// Option configures the engine.
type Option func(*Engine)

// WithInterval overrides the periodic reconcile cadence.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// NewEngine creates the orchestrator. selfID is the local user id,
// used to keep our own messages from bumping unread counts.
func NewEngine(db *store.DB, remote RemoteAPI, b *bus.Bus, selfID string, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		db:       db,
		remote:   remote,
		bus:      b,
		logger:   logger,
		selfID:   selfID,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start serves the cached chat list immediately, kicks a reconcile
// cycle, and begins consuming realtime deltas plus the periodic timer.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	// Cold start: cached data first, bounded staleness is fine. A store
	// failure means "no cached data", never a hard failure.
	cached, err := e.db.GetChats(ctx)
	if err != nil {
		e.logger.Warn("cold start with empty cache", zap.Error(err))
	}
	if len(cached) > 0 {
		for i := range cached {
			e.deriveDisplayName(&cached[i])
		}
		e.mu.Lock()
		e.canonical = merge.Chats(nil, cached)
		merge.SortByRecency(e.canonical)
		e.mu.Unlock()
		e.publishView()
	}

	events, unsub := e.bus.Subscribe("rt.", 256)

	go func() {
		defer unsub()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		if err := e.Reconcile(ctx); err != nil {
			e.logger.Warn("initial reconcile failed", zap.Error(err))
		}

		for {
			select {
			case evt := <-events:
				e.handleRealtime(ctx, evt)
			case <-ticker.C:
				if err := e.Reconcile(ctx); err != nil {
					e.logger.Warn("periodic reconcile failed", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the engine loops.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Snapshot returns the canonical chat list and the error flag from the
// most recent reconcile. The slice is a copy.
func (e *Engine) Snapshot() ([]model.Chat, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Chat, len(e.canonical))
	copy(out, e.canonical)
	return out, e.syncErr
}

// Reconcile runs one fetch-merge-persist pass. On any failure the
// previously published state is left untouched and the error flag set;
// cached data is never destroyed.
func (e *Engine) Reconcile(ctx context.Context) error {
	fetched, err := e.remote.ListAllChats(ctx)
	if err != nil {
		e.mu.Lock()
		e.syncErr = err
		e.mu.Unlock()
		e.logger.Warn("reconcile fetch failed",
			zap.Bool("retriable", remote.Retriable(err)),
			zap.Error(err))
		// The previously published list stays up; only the flag changes.
		e.publishView()
		return fmt.Errorf("reconcile fetch: %w", err)
	}

	local, err := e.db.GetChats(ctx)
	if err != nil {
		// Store unavailable reads as "no cached data".
		e.logger.Warn("reconcile reading cache", zap.Error(err))
		local = nil
	}

	current, _ := e.Snapshot()
	merged := merge.Chats(merge.Chats(current, local), fetched)

	e.backfillSummaries(ctx, merged)
	for i := range merged {
		e.deriveDisplayName(&merged[i])
	}

	// A realtime delta may have landed while we were fetching; merging
	// against the live canonical set keeps last-write-wins by timestamp
	// rather than by arrival order.
	e.mu.Lock()
	e.canonical = merge.Chats(e.canonical, merged)
	merge.SortByRecency(e.canonical)
	e.syncErr = nil
	final := make([]model.Chat, len(e.canonical))
	copy(final, e.canonical)
	e.mu.Unlock()

	e.persist(ctx, final, local)
	e.recordReconcile(ctx)
	e.publishView()
	return nil
}

// backfillSummaries fetches the most recent message for chats missing a
// summary. Fetches run with bounded concurrency and independent
// failures: one dead chat endpoint cannot abort the batch.
func (e *Engine) backfillSummaries(ctx context.Context, chats []model.Chat) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)

	for i := range chats {
		if chats[i].LastMessage != nil {
			continue
		}
		c := &chats[i]
		g.Go(func() error {
			msg, err := e.remote.LatestMessage(ctx, c.ID)
			if err != nil || msg == nil {
				if err != nil {
					e.logger.Debug("summary backfill failed", zap.String("chat_id", c.ID), zap.Error(err))
				}
				return nil
			}
			c.LastMessage = &model.LastMessage{
				Content:   msg.Content,
				SenderID:  msg.SenderID,
				CreatedAt: msg.CreatedAt,
				Type:      msg.Type,
			}
			return nil
		})
	}
	_ = g.Wait()
}

// persist writes the canonical set back and removes local rows for
// duplicate direct chats the merge dropped.
func (e *Engine) persist(ctx context.Context, canonical, local []model.Chat) {
	keep := make(map[string]bool, len(canonical))
	for i := range canonical {
		keep[canonical[i].ID] = true
		if err := e.db.SaveChat(ctx, &canonical[i]); err != nil {
			e.logger.Warn("persist chat failed", zap.Error(err), zap.String("chat_id", canonical[i].ID))
		}
	}
	for i := range local {
		if !keep[local[i].ID] {
			if err := e.db.DeleteChat(ctx, local[i].ID); err != nil {
				e.logger.Warn("drop duplicate chat failed", zap.Error(err), zap.String("chat_id", local[i].ID))
			}
		}
	}
}

func (e *Engine) handleRealtime(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case realtime.EventConnected:
		// Catch up on anything missed during the disconnect window.
		if err := e.Reconcile(ctx); err != nil {
			e.logger.Warn("reconcile on connect failed", zap.Error(err))
		}
	case realtime.EventNewChat, realtime.EventChatUpdated:
		chat, ok := evt.Payload.(*model.Chat)
		if !ok {
			return
		}
		e.applyChatDelta(ctx, chat)
	case realtime.EventMessage:
		msg, ok := evt.Payload.(*model.Message)
		if !ok {
			return
		}
		e.applyMessageDelta(ctx, msg)
	}
}

// deriveDisplayName names a direct chat after its non-self participant
// when the server sent no name. Group chats keep whatever the server
// said, empty included.
func (e *Engine) deriveDisplayName(c *model.Chat) {
	if c.Kind != model.KindDirect || c.Name != "" {
		return
	}
	for _, id := range c.ParticipantIDs {
		if id != "" && id != e.selfID {
			c.Name = id
			return
		}
	}
}

// applyChatDelta folds a pushed chat record into the canonical set and
// the store, through the same merge path a reconcile uses.
func (e *Engine) applyChatDelta(ctx context.Context, chat *model.Chat) {
	e.deriveDisplayName(chat)
	if err := e.db.SaveChat(ctx, chat); err != nil {
		e.logger.Warn("persist chat delta failed", zap.Error(err), zap.String("chat_id", chat.ID))
	}

	e.mu.Lock()
	e.canonical = merge.Chats(e.canonical, []model.Chat{*chat})
	merge.SortByRecency(e.canonical)
	e.mu.Unlock()

	e.publishView()
}

// applyMessageDelta stores a pushed message and rolls the hosting chat's
// summary and unread count forward.
func (e *Engine) applyMessageDelta(ctx context.Context, msg *model.Message) {
	if err := e.db.SaveMessage(ctx, msg); err != nil {
		e.logger.Warn("persist message delta failed", zap.Error(err), zap.String("chat_id", msg.ChatID))
	}

	chat := e.chatByID(msg.ChatID)
	if chat == nil {
		stored, err := e.db.GetChat(ctx, msg.ChatID)
		if err == nil && stored != nil {
			chat = stored
		} else {
			// Message for a chat we have never seen. Materialize a stub;
			// the next reconcile fills in participants and naming.
			chat = &model.Chat{ID: msg.ChatID, Kind: model.KindDirect}
		}
	}

	updated := *chat
	if updated.LastMessage == nil || msg.CreatedAt >= updated.LastMessage.CreatedAt {
		updated.LastMessage = &model.LastMessage{
			Content:   msg.Content,
			SenderID:  msg.SenderID,
			CreatedAt: msg.CreatedAt,
			Type:      msg.Type,
		}
	}
	if msg.SenderID != e.selfID {
		updated.UnreadCount++
	}
	if msg.CreatedAt > updated.UpdatedAt {
		updated.UpdatedAt = msg.CreatedAt
	}

	e.applyChatDelta(ctx, &updated)

	e.bus.Publish(bus.Event{
		Kind:      "message.received",
		Timestamp: time.Now(),
		Payload:   msg,
	})
}

func (e *Engine) chatByID(id string) *model.Chat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := range e.canonical {
		if e.canonical[i].ID == id {
			c := e.canonical[i]
			return &c
		}
	}
	return nil
}

func (e *Engine) publishView() {
	chats, syncErr := e.Snapshot()
	e.bus.Publish(bus.Event{
		Kind:      "view.updated",
		Timestamp: time.Now(),
		Payload:   ViewUpdate{Chats: chats, SyncFailed: syncErr != nil},
	})
}

// ViewUpdate is the payload of view.updated events: the canonical chat
// list plus the reconcile error flag.
type ViewUpdate struct {
	Chats      []model.Chat
	SyncFailed bool
}
