package message

import (
	"strings"
	"testing"
)

func TestValidateContent_Valid(t *testing.T) {
	if err := ValidateContent("hello", TypeText); err != nil {
		t.Errorf("unexpected error for valid text: %v", err)
	}
	if err := ValidateContent("attachments/abc.png", TypeImage); err != nil {
		t.Errorf("unexpected error for valid image key: %v", err)
	}
}

func TestValidateContent_Empty(t *testing.T) {
	if err := ValidateContent("", TypeText); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestValidateContent_TooLong(t *testing.T) {
	long := strings.Repeat("a", MaxContentBytes+1)
	if err := ValidateContent(long, TypeText); err == nil {
		t.Error("expected error for content over byte limit")
	}

	// Multibyte runes: under the byte cap but over the character cap.
	runes := strings.Repeat("é", MaxContentChars+1)
	if len(runes) <= MaxContentBytes {
		if err := ValidateContent(runes, TypeText); err == nil {
			t.Error("expected error for content over character limit")
		}
	}
}

func TestValidateContent_CharCapOnlyForText(t *testing.T) {
	// Object keys are not subject to the character cap, only the byte cap.
	key := strings.Repeat("k", MaxContentChars+1)
	if err := ValidateContent(key, TypeFile); err != nil {
		t.Errorf("unexpected error for long file key: %v", err)
	}
}

func TestValidateContent_InvalidUTF8(t *testing.T) {
	if err := ValidateContent(string([]byte{0xff, 0xfe}), TypeText); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateContent_UnknownType(t *testing.T) {
	if err := ValidateContent("hello", "carrier-pigeon"); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestPeerAndParticipant(t *testing.T) {
	m := Message{SenderID: "alice", ReceiverID: "bob"}

	if got := m.Peer("alice"); got != "bob" {
		t.Errorf("Peer(alice) = %q, want bob", got)
	}
	if got := m.Peer("bob"); got != "alice" {
		t.Errorf("Peer(bob) = %q, want alice", got)
	}
	if got := m.Peer("mallory"); got != "" {
		t.Errorf("Peer(mallory) = %q, want empty", got)
	}
	if !m.IsParticipant("alice") || !m.IsParticipant("bob") {
		t.Error("participants not recognized")
	}
	if m.IsParticipant("mallory") {
		t.Error("non-participant recognized as participant")
	}
}
