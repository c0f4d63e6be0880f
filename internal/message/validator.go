package message

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // 4KB max payload
	MaxContentChars = 2000 // max character count for text messages
)

// validTypes is the set of allowed message_type values, matching the CHECK
// constraint on the messages table.
var validTypes = map[string]bool{
	TypeText:   true,
	TypeImage:  true,
	TypeFile:   true,
	TypeSystem: true,
}

// ValidateContent checks that message content meets size and encoding
// requirements. For image/file messages the content is an object key, so
// only the byte cap and UTF-8 validity apply.
func ValidateContent(content, msgType string) error {
	if !validTypes[msgType] {
		return fmt.Errorf("invalid message type %q", msgType)
	}
	if len(content) == 0 {
		return fmt.Errorf("message content is empty")
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	if msgType == TypeText && utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("message exceeds %d character limit", MaxContentChars)
	}
	return nil
}
