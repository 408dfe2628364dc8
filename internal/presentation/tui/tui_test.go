package tui_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/replyflow/internal/presentation/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer_NotATerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, tui.IsTerminal(&buf))

	render := tui.NewRenderer(&buf)
	out, err := render("**hello**")
	require.NoError(t, err)
	assert.Equal(t, "**hello**", out)
}

func TestNewStyledRenderer(t *testing.T) {
	render, err := tui.NewStyledRenderer("notty")
	require.NoError(t, err)

	out, err := render("# Title\n\nhello world")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "hello world")

	_, err = tui.NewStyledRenderer("no-such-style")
	assert.Error(t, err)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "1.2.3")

	out := buf.String()
	assert.Contains(t, out, "v1.2.3")
	assert.NotContains(t, out, "\x1b[", "no escape codes outside a terminal")
	assert.GreaterOrEqual(t, strings.Count(out, "\n"), 7)
}
