package domain_test

import (
	"strings"
	"testing"

	"github.com/aretw0/replyflow/pkg/domain"
)

func TestSanitizeInput_SizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		limit   int
		wantErr bool
	}{
		{"under default limit", domain.DefaultMaxInputSize - 1, 0, false},
		{"exact default limit", domain.DefaultMaxInputSize, 0, false},
		{"over default limit", domain.DefaultMaxInputSize + 1, 0, true},
		{"custom limit", 11, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.SanitizeInput(strings.Repeat("a", tt.size), tt.limit)
			if tt.wantErr {
				if !domain.IsInputError(err) {
					t.Errorf("SanitizeInput() expected an input error for size %d, got %v", tt.size, err)
				}
			} else if err != nil {
				t.Errorf("SanitizeInput() unexpected error: %v", err)
			}
		})
	}
}

func TestSanitizeInput_ControlChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"normal text", "Hello World", "Hello World"},
		{"safe controls", "Line1\nLine2\tTabbed\r", "Line1\nLine2\tTabbed\r"},
		{"ansi code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"null byte", "Null\x00Byte", "NullByte"},
		{"bell", "Ding\x07", "Ding"},
		{"unicode kept", "Olá, tudo bem? 👋", "Olá, tudo bem? 👋"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.SanitizeInput(tt.input, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeInput_InvalidUTF8(t *testing.T) {
	if _, err := domain.SanitizeInput("bad \xff byte", 0); !domain.IsInputError(err) {
		t.Errorf("expected an input error, got %v", err)
	}
}
