// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skillswap/realtime/internal/chat"
	"github.com/skillswap/realtime/internal/conversation"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeSendMessage       = "send_message"
	TypeFetchMessages     = "fetch_messages"
	TypeListConversations = "list_conversations"
	TypeMarkRead          = "mark_read"
	TypeTyping            = "typing"
	TypeOpenConversation  = "open_conversation"
	TypeCloseConversation = "close_conversation"
	TypeAttachRequest     = "attach_request"
	TypeSetStatus         = "set_status"
	TypeUpdateProfile     = "update_profile"
	TypePing              = "ping"
)

// Server -> Client message types.
const (
	TypeReady            = "ready"
	TypeMessageNew       = "message_new"
	TypeMessageUpdate    = "message_update"
	TypeMessageHistory   = "message_history"
	TypeConversationList = "conversation_list"
	TypeTypingState      = "typing_state"
	TypeStatusChange     = "status_change"
	TypeProfileChange    = "profile_change"
	TypeAttachTicket     = "attach_ticket"
	TypeRateLimited      = "rate_limited"
	TypeError            = "error"
	TypePong             = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// SendMessageMsg is sent by the client to deliver a direct message.
type SendMessageMsg struct {
	Type        string  `json:"type"`
	ReceiverID  string  `json:"receiver_id"`
	Content     string  `json:"content"`
	MessageType string  `json:"message_type"` // defaults to "text" when empty
	ReplyTo     *string `json:"reply_to,omitempty"`
}

// FetchMessagesMsg requests a page of conversation history with a peer.
type FetchMessagesMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// ListConversationsMsg requests the merged conversation list.
type ListConversationsMsg struct {
	Type string `json:"type"`
}

// MarkReadMsg marks all messages from a peer as read.
type MarkReadMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

// TypingMsg reports keystroke activity toward a peer.
type TypingMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

// OpenConversationMsg subscribes to the pair room shared with a peer.
type OpenConversationMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

// CloseConversationMsg drops the pair room subscription for a peer.
type CloseConversationMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

// AttachRequestMsg requests a presigned upload ticket for an attachment.
type AttachRequestMsg struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// SetStatusMsg updates the sender's presence status message.
type SetStatusMsg struct {
	Type          string `json:"type"`
	StatusMessage string `json:"status_message"`
}

// UpdateProfileMsg upserts the sender's directory profile.
type UpdateProfileMsg struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Headline string `json:"headline"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// ReadyMsg is sent once the connection is authenticated and the user's
// feed subscriptions are open.
type ReadyMsg struct {
	UserID string `json:"user_id"`
}

// MessageNewMsg carries an inbound message, whether it arrived via the
// pair room broadcast or the change feed.
type MessageNewMsg struct {
	Message      chat.HistoryEntry `json:"message"`
	SenderName   string            `json:"sender_name,omitempty"`
	SenderAvatar string            `json:"sender_avatar,omitempty"`
	Via          string            `json:"via"` // "broadcast" or "feed"
}

// MessageUpdateMsg carries a message status change (delivered promotion
// or read receipt). A receipt without an ID means every message of the
// pair has advanced to the given status.
type MessageUpdateMsg struct {
	MessageID  string `json:"message_id,omitempty"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Status     string `json:"status"`
}

// MessageHistoryMsg is a page of conversation history, ascending by
// creation time.
type MessageHistoryMsg struct {
	PeerID   string              `json:"peer_id"`
	Messages []chat.HistoryEntry `json:"messages"`
	Offset   int                 `json:"offset"`
}

// ConversationListMsg is the merged, sorted conversation list.
type ConversationListMsg struct {
	Conversations []conversation.Preview `json:"conversations"`
}

// TypingStateMsg reports a peer's typing indicator change.
type TypingStateMsg struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// StatusChangeMsg reports a presence change for any user.
type StatusChangeMsg struct {
	UserID        string    `json:"user_id"`
	IsOnline      bool      `json:"is_online"`
	LastSeen      time.Time `json:"last_seen"`
	StatusMessage string    `json:"status_message,omitempty"`
}

// ProfileChangeMsg reports a directory profile upsert.
type ProfileChangeMsg struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// AttachTicketMsg carries a presigned upload grant.
type AttachTicketMsg struct {
	ObjectKey string    `json:"object_key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RateLimitedMsg tells the client an action was throttled.
type RateLimitedMsg struct {
	Action string `json:"action"`
}

// ErrorMsg is a structured error response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a client ping.
type PongMsg struct{}

// ---------------------------------------------------------------------------
// Parsing and construction
// ---------------------------------------------------------------------------

// ParseClientMessage decodes raw bytes into the concrete client message
// struct for the embedded type discriminator. It returns the type, the
// decoded message, and an error for unknown types or malformed payloads.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}

	var msg interface{}
	var err error

	switch env.Type {
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFetchMessages:
		var m FetchMessagesMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeListConversations:
		var m ListConversationsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMarkRead:
		var m MarkReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeOpenConversation:
		var m OpenConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCloseConversation:
		var m CloseConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAttachRequest:
		var m AttachRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSetStatus:
		var m SetStatusMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUpdateProfile:
		var m UpdateProfileMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
