package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"github.com/otaviocarvalho/chatsync/internal/profile"
	"github.com/otaviocarvalho/chatsync/internal/store"
	intsync "github.com/otaviocarvalho/chatsync/internal/sync"
	"go.uber.org/zap"
)

// Server exposes the daemon's local HTTP API on the profile's unix
// domain socket.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	profile    string
	db         *store.DB
	engine     *intsync.Engine
	logger     *zap.Logger
	startedAt  time.Time
}

// NewServer creates an HTTP server bound to the profile's unix socket.
func NewServer(p Params, db *store.DB, engine *intsync.Engine, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		listener:   listener,
		socketPath: socketPath,
		profile:    p.ProfileName,
		db:         db,
		engine:     engine,
		logger:     logger,
		startedAt:  time.Now(),
	}
	s.httpServer = &http.Server{Handler: s.routes()}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/chats", s.handleListChats)
		r.Get("/search", s.handleSearch)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/", s.handleGetChat)
			r.Get("/messages", s.handleListMessages)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/read", s.handleMarkRead)
			r.Get("/participants", s.handleListParticipants)
		})
		r.Route("/messages/{messageID}/reactions", func(r chi.Router) {
			r.Post("/", s.handleAddReaction)
			r.Delete("/{emoji}", s.handleRemoveReaction)
		})
	})
	return r
}

// Start begins serving API requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("api server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("api server stopping")
	_ = s.httpServer.Shutdown(ctx)
	_ = os.Remove(s.socketPath)
}

type statusResponse struct {
	Profile         string `json:"profile"`
	UptimeSecs      int64  `json:"uptime_secs"`
	LastReconcileAt int64  `json:"last_reconcile_at"`
	SyncFailed      bool   `json:"sync_failed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, syncErr := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Profile:         s.profile,
		UptimeSecs:      int64(time.Since(s.startedAt).Seconds()),
		LastReconcileAt: s.engine.LastReconcileAt(r.Context()),
		SyncFailed:      syncErr != nil,
	})
}

type chatsResponse struct {
	Chats      []model.Chat `json:"chats"`
	SyncFailed bool         `json:"sync_failed"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, syncErr := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, chatsResponse{Chats: chats, SyncFailed: syncErr != nil})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.db.GetChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.db.GetMessages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`

	// ClientID is set on resend; a fresh send leaves it empty and the
	// daemon assigns one.
	ClientID string `json:"client_id"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	msgType := model.MessageType(req.Type)
	if req.Type == "" {
		msgType = model.TypeText
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	chatID := chi.URLParam(r, "chatID")
	if err := s.db.QueueOutbox(r.Context(), clientID, chatID, req.Content, msgType); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"client_id": clientID})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkChatRead(r.Context(), chi.URLParam(r, "chatID")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	parts, err := s.db.GetParticipants(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": parts})
}

type searchResponse struct {
	Messages []model.Message `json:"messages"`
	Chats    []model.Chat    `json:"chats"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	chatID := r.URL.Query().Get("chat")
	limit := queryInt(r, "limit", 50)

	msgs, err := s.db.SearchMessages(r.Context(), q, chatID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var chats []model.Chat
	if chatID == "" {
		chats, err = s.db.SearchChats(r.Context(), q, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Messages: msgs, Chats: chats})
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (s *Server) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji is required")
		return
	}
	if err := s.db.AddReaction(r.Context(), chi.URLParam(r, "messageID"), req.Emoji); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveReaction(w http.ResponseWriter, r *http.Request) {
	emoji := chi.URLParam(r, "emoji")
	if err := s.db.RemoveReaction(r.Context(), chi.URLParam(r, "messageID"), emoji); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
