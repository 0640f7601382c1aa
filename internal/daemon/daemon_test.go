package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/store"
	intsync "github.com/otaviocarvalho/chatsync/internal/sync"
	"go.uber.org/zap"
)

type stubRemote struct {
	chats []model.Chat
}

func (s *stubRemote) ListAllChats(_ context.Context) ([]model.Chat, error) {
	return s.chats, nil
}

func (s *stubRemote) LatestMessage(_ context.Context, _ string) (*model.Message, error) {
	return nil, nil
}

type testDaemon struct {
	client *http.Client
	db     *store.DB
	engine *intsync.Engine
}

func startTestDaemon(t *testing.T, remote *stubRemote) *testDaemon {
	t.Helper()

	// Short path to stay under the unix socket length limit.
	tmpDir, err := os.MkdirTemp("/tmp", "chatsync-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })
	socketPath := filepath.Join(tmpDir, "d.sock")

	db, err := store.Open(filepath.Join(tmpDir, "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	engine := intsync.NewEngine(db, remote, b, "me", nil, intsync.WithInterval(time.Hour))
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	srv, err := NewServer(Params{ProfileName: "test", SocketPath: socketPath}, db, engine, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	// Wait for the socket to accept connections.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := client.Get("http://unix/v1/status")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return &testDaemon{client: client, db: db, engine: engine}
}

func (d *testDaemon) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := d.client.Get("http://unix" + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (d *testDaemon) postJSON(t *testing.T, path string, body, out any) int {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := d.client.Post("http://unix"+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})

	var status statusResponse
	if code := d.getJSON(t, "/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Profile != "test" {
		t.Errorf("profile = %q, want test", status.Profile)
	}
	if status.SyncFailed {
		t.Error("sync_failed = true with a healthy stub remote")
	}
}

func TestListChatsServesSyncedView(t *testing.T) {
	remote := &stubRemote{chats: []model.Chat{
		{ID: "c1", Kind: model.KindDirect, Name: "Alice", ParticipantIDs: []string{"me", "alice"}, UpdatedAt: 1000},
	}}
	d := startTestDaemon(t, remote)

	// The engine's initial reconcile runs async; poll until it lands.
	deadline := time.Now().Add(2 * time.Second)
	var resp chatsResponse
	for {
		d.getJSON(t, "/v1/chats", &resp)
		if len(resp.Chats) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(resp.Chats) != 1 || resp.Chats[0].ID != "c1" {
		t.Fatalf("chats = %+v, want c1", resp.Chats)
	}
}

func TestSendMessageQueuesOutbox(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})

	var out struct {
		ClientID string `json:"client_id"`
	}
	code := d.postJSON(t, "/v1/chats/c1/messages", sendMessageRequest{Content: "hello"}, &out)
	if code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202", code)
	}
	if out.ClientID == "" {
		t.Fatal("no client_id assigned")
	}

	pending, err := d.db.PendingOutbox(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ClientID != out.ClientID {
		t.Fatalf("pending = %+v, want queued entry %s", pending, out.ClientID)
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})

	code := d.postJSON(t, "/v1/chats/c1/messages", sendMessageRequest{}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", code)
	}
}

func TestMarkReadZeroesUnread(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})
	ctx := context.Background()

	if err := d.db.SaveChat(ctx, &model.Chat{ID: "c1", Kind: model.KindDirect, UnreadCount: 4, UpdatedAt: 1000}); err != nil {
		t.Fatal(err)
	}
	if code := d.postJSON(t, "/v1/chats/c1/read", nil, nil); code != http.StatusNoContent {
		t.Fatalf("status code = %d, want 204", code)
	}
	chat, _ := d.db.GetChat(ctx, "c1")
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", chat.UnreadCount)
	}
}

func TestSearchEndpoint(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})
	ctx := context.Background()

	if err := d.db.SaveMessage(ctx, &model.Message{
		ClientID: "m1", ChatID: "c1", SenderID: "alice", Content: "release the build",
		Type: model.TypeText, CreatedAt: 1000, Status: model.StatusSent,
	}); err != nil {
		t.Fatal(err)
	}

	var resp searchResponse
	if code := d.getJSON(t, "/v1/search?q=release", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(resp.Messages) != 1 {
		t.Errorf("messages = %+v, want 1 hit", resp.Messages)
	}

	if code := d.getJSON(t, "/v1/search", nil); code != http.StatusBadRequest {
		t.Errorf("missing q: status code = %d, want 400", code)
	}
}

func TestChatNotFound(t *testing.T) {
	d := startTestDaemon(t, &stubRemote{})

	if code := d.getJSON(t, "/v1/chats/absent", nil); code != http.StatusNotFound {
		t.Errorf("status code = %d, want 404", code)
	}
}
