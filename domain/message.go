// Package domain contains core concepts of the stream chat relay.
// This file defines chat messages and related rules.
// Messages are immutable once stored; deletion is a soft flag.
package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxMessageLength bounds a user message body.
	MaxMessageLength = 500
	// MaxReplyLength bounds an assistant reply; longer replies are suppressed.
	MaxReplyLength = 200
)

// Message represents a chat message as exchanged with the message store.
// UserID is nil for messages authored by the assistant bot.
type Message struct {
	ID          uuid.UUID
	StreamID    string
	UserID      *string
	DisplayName string
	Body        string
	CreatedAt   time.Time
	Deleted     bool
}

// IsBot reports whether the message was authored by the assistant.
func (m Message) IsBot() bool {
	return m.UserID == nil
}
