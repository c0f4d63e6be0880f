// Package feed implements the change feed: every store mutation is
// published as a typed row-change event on a deterministic NATS subject,
// and subscribers receive typed callbacks per concern. Undecodable
// payloads are rejected and logged, never silently defaulted.
package feed

import (
	"time"

	"github.com/skillswap/realtime/internal/message"
)

// Message event kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
)

// MessageEvent is emitted when a message row is inserted or updated.
// Insert events are hydrated with the sender's display data before
// delivery; hydration failure degrades to "Unknown user" placeholders.
type MessageEvent struct {
	Kind         string          `json:"kind"`
	Message      message.Message `json:"message"`
	SenderName   string          `json:"sender_name,omitempty"`
	SenderAvatar string          `json:"sender_avatar,omitempty"`
}

// TypingEvent is emitted when a typing indicator changes.
type TypingEvent struct {
	UserID   string `json:"user_id"`
	TargetID string `json:"target_id"`
	IsTyping bool   `json:"is_typing"`
}

// StatusEvent is emitted when a user's presence record changes.
type StatusEvent struct {
	UserID        string    `json:"user_id"`
	IsOnline      bool      `json:"is_online"`
	LastSeen      time.Time `json:"last_seen"`
	StatusMessage string    `json:"status_message,omitempty"`
}

// ProfileEvent is emitted when a directory profile is upserted.
type ProfileEvent struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
