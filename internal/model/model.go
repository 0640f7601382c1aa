// Package model holds the domain types shared by the store, the remote
// client, the merge engine and the orchestrator.
package model

// ChatKind distinguishes one-on-one chats from group chats.
type ChatKind string

const (
	KindDirect ChatKind = "direct"
	KindGroup  ChatKind = "group"
)

// MessageType is the content type of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeAudio MessageType = "audio"
	TypeFile  MessageType = "file"
)

// MessageStatus is a delivery lifecycle state. Transition rules live in
// the status package.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
	StatusFailed    MessageStatus = "failed"
)

// LastMessage summarizes the most recent message of a chat.
type LastMessage struct {
	Content   string      `json:"content"`
	SenderID  string      `json:"senderId"`
	CreatedAt int64       `json:"createdAt"`
	Type      MessageType `json:"type"`
}

// Chat is a conversation, direct or group. ID is server-assigned and
// stable. UpdatedAt is the merge tie-break timestamp.
type Chat struct {
	ID             string       `json:"id"`
	Kind           ChatKind     `json:"kind"`
	Name           string       `json:"name"`
	Avatar         string       `json:"avatar,omitempty"`
	ParticipantIDs []string     `json:"participantIds"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
	UnreadCount    int          `json:"unreadCount"`
	UpdatedAt      int64        `json:"updatedAt"`
}

// Recency returns the timestamp used for merge tie-breaks: the last
// message time when present, otherwise UpdatedAt. Missing fields rank
// least recent so malformed records lose ties instead of winning them.
func (c *Chat) Recency() int64 {
	var ts int64
	if c.LastMessage != nil {
		ts = c.LastMessage.CreatedAt
	}
	if c.UpdatedAt > ts {
		ts = c.UpdatedAt
	}
	return ts
}

// Message is a single content unit within a chat. ClientID is generated
// on-device at creation time and never reused; ServerID is assigned once
// the server acknowledges receipt. A message is addressable by either.
type Message struct {
	ClientID  string         `json:"clientId"`
	ServerID  string         `json:"serverId,omitempty"`
	ChatID    string         `json:"chatId"`
	SenderID  string         `json:"senderId"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"type"`
	CreatedAt int64          `json:"createdAt"`
	Status    MessageStatus  `json:"status"`
	Error     string         `json:"error,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`
	EditedAt  int64          `json:"editedAt,omitempty"`
}

// ParticipantRole is a member's role within a chat.
type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// Participant joins a user to a chat.
type Participant struct {
	ChatID   string          `json:"chatId"`
	UserID   string          `json:"userId"`
	Role     ParticipantRole `json:"role"`
	JoinedAt int64           `json:"joinedAt"`
}
