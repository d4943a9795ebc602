// Package event defines the server-to-client events of the chat protocol.
// Every event is a plain payload struct; Name is the wire discriminator.
package event

import "time"

// Event is implemented by every server-to-client payload.
type Event interface {
	Name() string
}

const (
	NameConnectionStatus = "connection_status"
	NameUserJoined       = "user_joined"
	NameUserLeft         = "user_left"
	NameChatHistory      = "chat_history"
	NameJoinSuccess      = "join_success"
	NameNewMessage       = "new_message"
	NameMessageBlocked   = "message_blocked"
	NameMessageDeleted   = "message_deleted"
	NameChatStats        = "chat_stats"
	NameError            = "error"
)

// ConnectionStatus acknowledges a transport-level connect to one connection.
type ConnectionStatus struct {
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func (ConnectionStatus) Name() string { return NameConnectionStatus }

// UserJoined is broadcast to a room when a member joins.
type UserJoined struct {
	Username  string    `json:"username"`
	UserCount int       `json:"user_count"`
	Timestamp time.Time `json:"timestamp"`
}

func (UserJoined) Name() string { return NameUserJoined }

// UserLeft is broadcast to a room that still has members after a leave.
type UserLeft struct {
	Username  string `json:"username"`
	UserCount int    `json:"user_count"`
}

func (UserLeft) Name() string { return NameUserLeft }

// HistoryMessage is one entry of a chat history snapshot.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	IsBot     bool      `json:"is_bot"`
}

// ChatHistory carries the bounded recent history, oldest first,
// sent to the joining connection only.
type ChatHistory struct {
	Messages []HistoryMessage `json:"messages"`
}

func (ChatHistory) Name() string { return NameChatHistory }

// JoinSuccess acknowledges a join to the joining connection.
type JoinSuccess struct {
	StreamID    string `json:"stream_id"`
	StreamTitle string `json:"stream_title"`
	UserCount   int    `json:"user_count"`
}

func (JoinSuccess) Name() string { return NameJoinSuccess }

// NewMessage is broadcast to a room for every accepted message.
type NewMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	UserID    *string   `json:"user_id"`
	IsBot     bool      `json:"is_bot"`
}

func (NewMessage) Name() string { return NameNewMessage }

// MessageBlocked tells the sender their message was rejected by moderation.
// It is distinct from Error: a block is a decision, not a failure.
type MessageBlocked struct {
	Reason string `json:"reason"`
}

func (MessageBlocked) Name() string { return NameMessageBlocked }

// MessageDeleted is broadcast to the message's room after a soft delete.
type MessageDeleted struct {
	MessageID string `json:"message_id"`
}

func (MessageDeleted) Name() string { return NameMessageDeleted }

// ActiveUser is one member entry of a stats payload.
type ActiveUser struct {
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

// ChatStats reports a room's counters to the requesting connection.
type ChatStats struct {
	StreamID         string       `json:"stream_id"`
	TotalMessages    int          `json:"total_messages"`
	ActiveUsersCount int          `json:"active_users_count"`
	ActiveUsers      []ActiveUser `json:"active_users"`
}

func (ChatStats) Name() string { return NameChatStats }

// Error reports a request failure to the requesting connection.
type Error struct {
	Message string `json:"message"`
}

func (Error) Name() string { return NameError }
