package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize bounds an inbound message, in bytes.
const DefaultMaxInputSize = 4096

// SanitizeInput checks an inbound customer message. Text over limit bytes or
// with invalid UTF-8 is rejected, not truncated. Control characters other
// than newline, tab and carriage return are stripped so escape sequences
// never reach logs, prompts or terminals. A non-positive limit uses
// DefaultMaxInputSize.
func SanitizeInput(text string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultMaxInputSize
	}
	if len(text) > limit {
		return "", NewInputError("text", fmt.Sprintf("is %d bytes, the limit is %d", len(text), limit))
	}
	if !utf8.ValidString(text) {
		return "", NewInputError("text", "contains invalid UTF-8")
	}
	if strings.IndexFunc(text, unsafeControl) < 0 {
		return text, nil
	}
	return strings.Map(func(r rune) rune {
		if unsafeControl(r) {
			return -1
		}
		return r
	}, text), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}
