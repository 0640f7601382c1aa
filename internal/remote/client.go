// Package remote is the stateless request layer over the backend chat
// API. It performs no retries and no caching; retry policy belongs to
// the orchestrator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/otaviocarvalho/chatsync/internal/model"
)

const (
	// DefaultPageSize is the fixed page size for chat list pagination.
	DefaultPageSize = 50
	// MaxChatPages caps ListAllChats as a safety valve against runaway
	// pagination on a misbehaving backend.
	MaxChatPages = 40

	defaultTimeout = 15 * time.Second
)

// Client issues authenticated requests to the chat backend.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithPageSize overrides the chat list page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a remote client for the given base URL and bearer
// token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		pageSize:   DefaultPageSize,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChats fetches one page of the current user's chats.
func (c *Client) ListChats(ctx context.Context, limit, offset int) ([]model.Chat, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var chats []model.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", q, nil, &chats, "list chats"); err != nil {
		return nil, err
	}
	return chats, nil
}

// ListAllChats pages through the full chat list. A short page signals
// the end; MaxChatPages bounds the loop.
func (c *Client) ListAllChats(ctx context.Context) ([]model.Chat, error) {
	var all []model.Chat
	for page := 0; page < MaxChatPages; page++ {
		chats, err := c.ListChats(ctx, c.pageSize, page*c.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, chats...)
		if len(chats) < c.pageSize {
			break
		}
	}
	return all, nil
}

// Order controls message listing direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ListOptions selects a message history page. Offset and BeforeID are
// alternative paging styles; BeforeID wins when both are set.
type ListOptions struct {
	Limit    int
	Offset   int
	BeforeID string
	Order    Order
}

// ListMessages fetches a page of a chat's history.
func (c *Client) ListMessages(ctx context.Context, chatID string, opts ListOptions) ([]model.Message, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.BeforeID != "" {
		q.Set("beforeId", opts.BeforeID)
	} else if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Order != "" {
		q.Set("order", string(opts.Order))
	}

	var msgs []model.Message
	err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", q, nil, &msgs, "list messages")
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// LatestMessage cheaply fetches a chat's most recent message using the
// descending-order mode, or nil when the chat is empty.
func (c *Client) LatestMessage(ctx context.Context, chatID string) (*model.Message, error) {
	msgs, err := c.ListMessages(ctx, chatID, ListOptions{Limit: 1, Order: OrderDesc})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

type postMessageResponse struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"createdAt"`
}

// PostMessage appends a message to a chat and returns the
// server-assigned id. Single-shot: a failure here is the caller's to
// handle.
func (c *Client) PostMessage(ctx context.Context, msg *model.Message) (string, error) {
	body := map[string]any{
		"clientId": msg.ClientID,
		"content":  msg.Content,
		"type":     msg.Type,
		"senderId": msg.SenderID,
	}
	var resp postMessageResponse
	err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(msg.ChatID)+"/messages", nil, body, &resp, "post message")
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateStatus reports a delivery status change for a message.
func (c *Client) UpdateStatus(ctx context.Context, messageID string, status model.MessageStatus, errMsg string) error {
	body := map[string]any{
		"status":    status,
		"timestamp": time.Now().UnixMilli(),
	}
	if errMsg != "" {
		body["error"] = errMsg
	}
	return c.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID)+"/status", nil, body, nil, "update status")
}

// CreateChat creates a chat and returns the server record.
func (c *Client) CreateChat(ctx context.Context, kind model.ChatKind, participantIDs []string, name string) (*model.Chat, error) {
	body := map[string]any{
		"kind":           kind,
		"participantIds": participantIDs,
	}
	if name != "" {
		body["name"] = name
	}
	var chat model.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", nil, body, &chat, "create chat"); err != nil {
		return nil, err
	}
	return &chat, nil
}

// Receipt is a read or delivery receipt for a message.
type Receipt struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// ReadReceipts lists who has read a message.
func (c *Client) ReadReceipts(ctx context.Context, messageID string) ([]Receipt, error) {
	var receipts []Receipt
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID)+"/read-receipts", nil, nil, &receipts, "read receipts")
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeliveryReceipts lists who has received a message.
func (c *Client) DeliveryReceipts(ctx context.Context, messageID string) ([]Receipt, error) {
	var receipts []Receipt
	err := c.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(messageID)+"/delivery-receipts", nil, nil, &receipts, "delivery receipts")
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, op string) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: classifyTransport(err), Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Op:         op,
			Err:        fmt.Errorf("%s", bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, StatusCode: resp.StatusCode, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
