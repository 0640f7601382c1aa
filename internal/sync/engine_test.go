package sync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/realtime"
	"github.com/otaviocarvalho/chatsync/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeRemote is an in-memory RemoteAPI.
type fakeRemote struct {
	mu     sync.Mutex
	chats  []model.Chat
	latest map[string]*model.Message
	err    error
}

func (f *fakeRemote) ListAllChats(_ context.Context) ([]model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Chat, len(f.chats))
	copy(out, f.chats)
	return out, nil
}

func (f *fakeRemote) LatestMessage(_ context.Context, chatID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[chatID], nil
}

func (f *fakeRemote) setError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func direct(id string, participants []string, updatedAt int64) model.Chat {
	return model.Chat{ID: id, Kind: model.KindDirect, ParticipantIDs: participants, UpdatedAt: updatedAt}
}

func TestReconcileMergesAndPersists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Cached duplicate direct chat, older than the fetched one.
	if err := db.SaveChat(ctx, &model.Chat{ID: "dup", Kind: model.KindDirect, ParticipantIDs: []string{"me", "peer"}, UpdatedAt: 100}); err != nil {
		t.Fatal(err)
	}

	remote := &fakeRemote{
		chats: []model.Chat{
			direct("canon", []string{"peer", "me"}, 200),
			{ID: "grp", Kind: model.KindGroup, ParticipantIDs: []string{"me", "a", "b"}, UpdatedAt: 150},
		},
		latest: map[string]*model.Message{
			"canon": {ServerID: "m1", ChatID: "canon", SenderID: "peer", Content: "hey", Type: model.TypeText, CreatedAt: 190},
		},
	}

	e := NewEngine(db, remote, bus.New(), "me", nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	chats, syncErr := e.Snapshot()
	if syncErr != nil {
		t.Errorf("sync error flag set: %v", syncErr)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2 (duplicate collapsed)", len(chats))
	}
	for _, c := range chats {
		if c.ID == "dup" {
			t.Error("duplicate direct chat survived the merge")
		}
		if c.ID == "canon" {
			if c.LastMessage == nil || c.LastMessage.Content != "hey" {
				t.Errorf("summary not backfilled: %+v", c.LastMessage)
			}
		}
	}

	// Canonical set written back; duplicate removed from the cache.
	stored, err := db.GetChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("store has %d chats, want 2", len(stored))
	}
	if e.LastReconcileAt(ctx) == 0 {
		t.Error("reconcile checkpoint not recorded")
	}
}

func TestReconcileFailurePreservesState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	remote := &fakeRemote{chats: []model.Chat{direct("c1", []string{"me", "peer"}, 100)}}
	e := NewEngine(db, remote, bus.New(), "me", nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	before, _ := e.Snapshot()

	remote.setError(errors.New("network down"))
	if err := e.Reconcile(ctx); err == nil {
		t.Fatal("expected reconcile error")
	}

	after, syncErr := e.Snapshot()
	if syncErr == nil {
		t.Error("error flag not set after failed cycle")
	}
	if len(after) != len(before) {
		t.Fatalf("chat list changed on failure: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].ID != before[i].ID {
			t.Errorf("chat list mutated on failure")
		}
	}

	// A later successful cycle clears the flag.
	remote.setError(nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	if _, syncErr := e.Snapshot(); syncErr != nil {
		t.Errorf("error flag not cleared: %v", syncErr)
	}
}

func TestRealtimeMessageDelta(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	b := bus.New()

	remote := &fakeRemote{chats: []model.Chat{direct("c1", []string{"me", "peer"}, 100)}}
	e := NewEngine(db, remote, b, "me", nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	msg := &model.Message{
		ClientID: "m1", ServerID: "s1", ChatID: "c1", SenderID: "peer",
		Content: "ping", Type: model.TypeText, CreatedAt: 500, Status: model.StatusDelivered,
	}
	e.applyMessageDelta(ctx, msg)

	chats, _ := e.Snapshot()
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	c := chats[0]
	if c.LastMessage == nil || c.LastMessage.Content != "ping" {
		t.Errorf("summary not updated: %+v", c.LastMessage)
	}
	if c.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", c.UnreadCount)
	}

	// Message persisted.
	msgs, err := db.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "ping" {
		t.Errorf("message not stored: %v", msgs)
	}

	// Our own echoed message must not bump unread.
	own := &model.Message{ClientID: "m2", ChatID: "c1", SenderID: "me", Content: "pong", Type: model.TypeText, CreatedAt: 600}
	e.applyMessageDelta(ctx, own)
	chats, _ = e.Snapshot()
	if chats[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 (own message)", chats[0].UnreadCount)
	}
}

func TestRealtimeDeltaOutlivesStaleReconcile(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	remote := &fakeRemote{chats: []model.Chat{direct("c1", []string{"me", "peer"}, 100)}}
	e := NewEngine(db, remote, bus.New(), "me", nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	// A realtime delta newer than anything the server will hand back.
	fresh := direct("c1", []string{"me", "peer"}, 900)
	fresh.Name = "renamed"
	e.applyChatDelta(ctx, &fresh)

	// A reconcile carrying the stale server copy must not win.
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}
	chats, _ := e.Snapshot()
	if len(chats) != 1 || chats[0].Name != "renamed" {
		t.Errorf("stale fetch overwrote newer delta: %+v", chats)
	}
}

func TestColdStartServesCache(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.SaveChat(ctx, &model.Chat{ID: "cached", Kind: model.KindGroup, UpdatedAt: 100}); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	views, unsub := b.Subscribe("view.", 8)
	defer unsub()

	remote := &fakeRemote{err: errors.New("offline")}
	e := NewEngine(db, remote, b, "me", nil, WithInterval(time.Hour))
	e.Start(ctx)
	defer e.Stop()

	// First view must carry the cached chat even though the network is
	// down.
	select {
	case evt := <-views:
		view := evt.Payload.(ViewUpdate)
		if len(view.Chats) != 1 || view.Chats[0].ID != "cached" {
			t.Errorf("cold start view = %+v", view.Chats)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no view published on cold start")
	}
}

func TestReconcileOnConnect(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	remote := &fakeRemote{chats: []model.Chat{direct("c1", []string{"me", "peer"}, 100)}}
	e := NewEngine(db, remote, bus.New(), "me", nil)

	e.handleRealtime(ctx, bus.Event{Kind: realtime.EventConnected})

	chats, _ := e.Snapshot()
	if len(chats) != 1 {
		t.Errorf("connect event did not trigger reconcile: %d chats", len(chats))
	}
}

func TestDirectChatNamedAfterPeer(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	remote := &fakeRemote{chats: []model.Chat{
		direct("c1", []string{"me", "peer"}, 100),
		{ID: "c2", Kind: model.KindDirect, Name: "Alice", ParticipantIDs: []string{"me", "alice"}, UpdatedAt: 100},
		{ID: "g1", Kind: model.KindGroup, ParticipantIDs: []string{"me", "a", "b"}, UpdatedAt: 100},
	}}
	e := NewEngine(db, remote, bus.New(), "me", nil)
	if err := e.Reconcile(ctx); err != nil {
		t.Fatal(err)
	}

	names := map[string]string{}
	chats, _ := e.Snapshot()
	for _, c := range chats {
		names[c.ID] = c.Name
	}
	if names["c1"] != "peer" {
		t.Errorf("c1 name = %q, want peer", names["c1"])
	}
	if names["c2"] != "Alice" {
		t.Errorf("c2 name = %q, server-sent name must be kept", names["c2"])
	}
	if names["g1"] != "" {
		t.Errorf("g1 name = %q, group chats are never renamed", names["g1"])
	}

	// The derived name reaches the cache too.
	stored, err := db.GetChat(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "peer" {
		t.Errorf("stored name = %q, want peer", stored.Name)
	}
}

func TestRealtimeChatDeltaNamedAfterPeer(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	e := NewEngine(db, &fakeRemote{}, bus.New(), "me", nil)
	pushed := direct("c1", []string{"me", "peer"}, 100)
	e.applyChatDelta(ctx, &pushed)

	chats, _ := e.Snapshot()
	if len(chats) != 1 || chats[0].Name != "peer" {
		t.Errorf("pushed chat = %+v, want name peer", chats)
	}
}
