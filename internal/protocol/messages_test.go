package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid send_message
// ---------------------------------------------------------------------------

func TestParseClientMessage_SendMessage(t *testing.T) {
	input := []byte(`{"type":"send_message","receiver_id":"user-2","content":"Hello!","message_type":"text"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSendMessage {
		t.Fatalf("expected type %q, got %q", TypeSendMessage, msgType)
	}

	sm, ok := msg.(SendMessageMsg)
	if !ok {
		t.Fatalf("expected SendMessageMsg, got %T", msg)
	}
	if sm.ReceiverID != "user-2" {
		t.Errorf("expected receiver_id %q, got %q", "user-2", sm.ReceiverID)
	}
	if sm.Content != "Hello!" {
		t.Errorf("expected content %q, got %q", "Hello!", sm.Content)
	}
	if sm.ReplyTo != nil {
		t.Errorf("expected nil reply_to, got %v", *sm.ReplyTo)
	}
}

func TestParseClientMessage_SendMessageWithReply(t *testing.T) {
	input := []byte(`{"type":"send_message","receiver_id":"user-2","content":"sure","reply_to":"msg-9"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sm := msg.(SendMessageMsg)
	if sm.ReplyTo == nil || *sm.ReplyTo != "msg-9" {
		t.Errorf("expected reply_to msg-9, got %v", sm.ReplyTo)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing fetch_messages with pagination
// ---------------------------------------------------------------------------

func TestParseClientMessage_FetchMessages(t *testing.T) {
	input := []byte(`{"type":"fetch_messages","peer_id":"user-2","limit":50,"offset":100}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeFetchMessages {
		t.Fatalf("expected type %q, got %q", TypeFetchMessages, msgType)
	}

	fm, ok := msg.(FetchMessagesMsg)
	if !ok {
		t.Fatalf("expected FetchMessagesMsg, got %T", msg)
	}
	if fm.PeerID != "user-2" || fm.Limit != 50 || fm.Offset != 100 {
		t.Errorf("unexpected fields: %+v", fm)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing profile and status updates
// ---------------------------------------------------------------------------

func TestParseClientMessage_SetStatus(t *testing.T) {
	input := []byte(`{"type":"set_status","status_message":"out learning pottery"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSetStatus {
		t.Fatalf("expected type %q, got %q", TypeSetStatus, msgType)
	}
	ss := msg.(SetStatusMsg)
	if ss.StatusMessage != "out learning pottery" {
		t.Errorf("unexpected status message: %q", ss.StatusMessage)
	}
}

func TestParseClientMessage_UpdateProfile(t *testing.T) {
	input := []byte(`{"type":"update_profile","name":"Ada","avatar":"a.png","headline":"violin for sourdough"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	up := msg.(UpdateProfileMsg)
	if up.Name != "Ada" || up.Avatar != "a.png" || up.Headline != "violin for sourdough" {
		t.Errorf("unexpected fields: %+v", up)
	}
}

// ---------------------------------------------------------------------------
// Test: Error cases
// ---------------------------------------------------------------------------

func TestParseClientMessage_MissingType(t *testing.T) {
	input := []byte(`{"receiver_id":"user-2","content":"hi"}`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected error for missing type field")
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"teleport"}`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestParseClientMessage_MalformedJSON(t *testing.T) {
	input := []byte(`{"type":"ping"`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// ---------------------------------------------------------------------------
// Test: Server message construction injects the type field
// ---------------------------------------------------------------------------

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeTypingState, TypingStateMsg{
		UserID:   "user-1",
		IsTyping: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("server message is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeTypingState {
		t.Errorf("expected type %q, got %v", TypeTypingState, decoded["type"])
	}
	if decoded["user_id"] != "user-1" {
		t.Errorf("expected user_id user-1, got %v", decoded["user_id"])
	}
	if decoded["is_typing"] != true {
		t.Errorf("expected is_typing true, got %v", decoded["is_typing"])
	}
}

func TestNewServerMessage_Pong(t *testing.T) {
	data, err := NewServerMessage(TypePong, PongMsg{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("pong is not valid JSON: %v", err)
	}
	if decoded["type"] != TypePong {
		t.Errorf("expected type %q, got %v", TypePong, decoded["type"])
	}
}

// Round trip: a client envelope built by NewServerMessage-style injection
// parses back to the same concrete struct.
func TestEnvelopeRoundTrip(t *testing.T) {
	input := []byte(`{"type":"typing","peer_id":"user-7"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeTyping {
		t.Fatalf("expected type %q, got %q", TypeTyping, msgType)
	}
	tm := msg.(TypingMsg)
	if tm.PeerID != "user-7" {
		t.Errorf("expected peer_id user-7, got %q", tm.PeerID)
	}
}
