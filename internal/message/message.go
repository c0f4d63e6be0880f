// Package message provides PostgreSQL-backed storage for direct messages
// between SkillSwap users: inserts, paginated history fetches, and the
// read/delivered status bookkeeping.
package message

import "time"

// Message type constants, stored in the message_type column.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeFile   = "file"
	TypeSystem = "system"
)

// Status constants for the delivery state machine. Transitions only move
// forward: sent -> delivered -> read. The forward direction is enforced by
// the WHERE guards on the update statements, not by a table constraint.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Message is one direct message row. ReplyTo and ReadAt are nil when unset.
type Message struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Content    string     `json:"content"`
	Type       string     `json:"message_type"`
	Status     string     `json:"status"`
	ReplyTo    *string    `json:"reply_to,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

// IsParticipant reports whether the given user is the sender or receiver.
func (m *Message) IsParticipant(userID string) bool {
	return userID == m.SenderID || userID == m.ReceiverID
}

// Peer returns the other participant's ID, or "" if userID is not a
// participant.
func (m *Message) Peer(userID string) string {
	if userID == m.SenderID {
		return m.ReceiverID
	}
	if userID == m.ReceiverID {
		return m.SenderID
	}
	return ""
}
