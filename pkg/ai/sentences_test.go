package ai_test

import (
	"testing"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello there. How are you? Great!", []string{"Hello there.", "How are you?", "Great!"}},
		{"It costs 3.50 today. Buy now", []string{"It costs 3.50 today.", "Buy now"}},
		{"Wait... really?! \"Yes.\" Ok", []string{"Wait...", "really?!", "\"Yes.\"", "Ok"}},
		{"No terminator", []string{"No terminator"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ai.SplitSentences(tt.in))
		})
	}
}

func TestClipSentences(t *testing.T) {
	text := "One.  Two!\nThree? Four."

	assert.Equal(t, "One. Two!", ai.ClipSentences(text, 2))
	assert.Equal(t, "One. Two! Three? Four.", ai.ClipSentences(text, 10))
	assert.Equal(t, text, ai.ClipSentences(text, 0))

	for n := 1; n <= 4; n++ {
		assert.LessOrEqual(t, len(ai.SplitSentences(ai.ClipSentences(text, n))), n)
	}
}
