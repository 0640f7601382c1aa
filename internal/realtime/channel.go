// Package realtime maintains the persistent push channel to the chat
// backend and republishes its deltas onto the in-process bus. The
// channel is delivery-best-effort: the orchestrator always reconciles on
// connect instead of trusting it to replay missed events.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/bus"
	"github.com/otaviocarvalho/chatsync/internal/model"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Wire event types pushed by the server.
const (
	evtNewChat     = "newChat"
	evtChatUpdated = "chatUpdated"
	evtMessage     = "message"
)

// Bus event kinds published by the channel.
const (
	EventConnected    = "rt.connected"
	EventDisconnected = "rt.disconnected"
	EventNewChat      = "rt.chat_new"
	EventChatUpdated  = "rt.chat_updated"
	EventMessage      = "rt.message"
)

// envelope is the wire format for pushed events.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the websocket realtime connection with automatic
// reconnection.
type Channel struct {
	url    string
	token  string
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	closed  bool
	backoff *backoff
}

// New creates a channel for the given websocket URL and bearer token.
func New(wsURL, token string, b *bus.Bus, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:     wsURL,
		token:   token,
		bus:     b,
		logger:  logger,
		backoff: newBackoff(time.Second, 30*time.Second),
	}
}

// Start connects and keeps the channel alive until ctx is cancelled or
// Close is called. Each successful connect publishes EventConnected;
// each drop publishes EventDisconnected and schedules a backoff retry.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

func (c *Channel) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.connectAndRead(ctx)
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}

		delay := c.backoff.next()
		c.logger.Warn("realtime channel dropped",
			zap.Error(err),
			zap.Duration("retry_in", delay))
		c.bus.Publish(bus.Event{Kind: EventDisconnected, Payload: errString(err)})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Channel) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	u := wsScheme(c.url)
	if c.token != "" {
		u += "?token=" + c.token
	}
	conn, _, err := websocket.Dial(dialCtx, u, nil)
	cancel()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.backoff.reset()
	c.logger.Info("realtime channel connected")
	c.bus.Publish(bus.Event{Kind: EventConnected})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			return err
		}
		c.dispatch(data)
	}
}

// dispatch decodes one pushed frame. Unknown or malformed frames are
// logged and skipped; the channel never dies on bad input.
func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("undecodable realtime frame", zap.Error(err))
		return
	}

	switch env.Type {
	case evtNewChat, evtChatUpdated:
		var chat model.Chat
		if err := json.Unmarshal(env.Payload, &chat); err != nil || chat.ID == "" {
			c.logger.Warn("bad chat payload", zap.String("type", env.Type), zap.Error(err))
			return
		}
		kind := EventNewChat
		if env.Type == evtChatUpdated {
			kind = EventChatUpdated
		}
		c.bus.Publish(bus.Event{Kind: kind, Payload: &chat})
	case evtMessage:
		var msg model.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil || msg.ChatID == "" {
			c.logger.Warn("bad message payload", zap.Error(err))
			return
		}
		c.bus.Publish(bus.Event{Kind: EventMessage, Payload: &msg})
	default:
		c.logger.Debug("ignoring realtime frame", zap.String("type", env.Type))
	}
}

func wsScheme(u string) string {
	u = strings.Replace(u, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
