package chat

import (
	"unicode/utf8"

	"github.com/kindredchat/kindred/internal/fault"
)

// DefaultMaxContentBytes is the message size cap used when no explicit limit
// is configured.
const DefaultMaxContentBytes = 4096

// ValidateContent checks that a chat message meets content requirements.
// maxBytes is the inclusive payload cap; zero or negative selects the
// default. Failures carry the invalid_content code.
func ValidateContent(text string, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContentBytes
	}
	if len(text) == 0 {
		return fault.New(fault.InvalidContent, "message text is empty")
	}
	if len(text) > maxBytes {
		return fault.Newf(fault.InvalidContent, "message exceeds %d byte limit", maxBytes)
	}
	if !utf8.ValidString(text) {
		return fault.New(fault.InvalidContent, "message contains invalid UTF-8")
	}
	return nil
}
