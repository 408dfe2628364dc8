package cli_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/replyflow"
	"github.com/aretw0/replyflow/internal/cli"
	"github.com/aretw0/replyflow/internal/testutils"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportFlow = `
id: support-v1
template_id: support
version: 3
nodes:
  - id: greet
    type: send_message
    config:
      text: "Hi {{contact_name}}!"
      buttons:
        - title: Shipping
      wait_for_reply: true
    next: faq
  - id: faq
    type: ai_reply
    config:
      system_prompt: Answer briefly.
    next: human
  - id: human
    type: handoff
    config:
      topic: support
      message: Connecting you to a teammate.
`

func TestSimulate_Conversation(t *testing.T) {
	path := testutils.WriteFile(t, "support.yaml", supportFlow)
	provider := testutils.NewScriptedProvider(`{"reply_text":"We ship worldwide."}`)
	rt := newRuntime(t, testConfig(), replyflow.WithProvider(provider))

	in := strings.NewReader(strings.Join([]string{
		"hello",
		"",
		"do you ship abroad?",
		"/timeline",
		"I want a person",
		"/transcript",
		"/quit",
		"never sent",
	}, "\n"))
	var out bytes.Buffer
	err := cli.Simulate(context.Background(), rt, cli.SimulateOptions{
		File:    path,
		Persona: domain.Persona{Name: "Bea"},
		In:      in,
		Out:     &out,
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, ">>> Previewing support (version 3) as Bea.")
	assert.Contains(t, got, "automation: Hi Bea!\n    [Shipping]\n")
	assert.Contains(t, got, "ai: We ship worldwide.")
	assert.Contains(t, got, "automation: Connecting you to a teammate.")
	assert.Contains(t, got, "node_transition")
	assert.Contains(t, got, "[customer] I want a person")
	assert.NotContains(t, got, "never sent")
	assert.Len(t, provider.Requests(), 1)

	inst, err := rt.Catalog.Instance(context.Background(), "support-v1-local")
	require.NoError(t, err)
	assert.False(t, inst.Active, "simulations deploy inactive instances")
}

func TestSimulate_ResetAndTerminalSession(t *testing.T) {
	path := testutils.WriteFile(t, "hello.yaml", `
id: hello-v1
nodes:
  - id: greet
    type: send_message
    config:
      text: Hello!
`)
	rt := newRuntime(t, testConfig())

	in := strings.NewReader("hi\nstill there?\n/reset\nhi again\n")
	var out bytes.Buffer
	err := cli.Simulate(context.Background(), rt, cli.SimulateOptions{File: path, In: in, Out: &out})
	require.NoError(t, err)

	got := out.String()
	assert.Equal(t, 2, strings.Count(got, "automation: Hello!"))
	assert.Contains(t, got, "Session completed. Type /reset to start over.")
	assert.Contains(t, got, ">>> Rejected:")
	assert.Contains(t, got, ">>> Preview reset. New session")
	assert.Contains(t, got, "as Preview Customer.")
}

func TestSimulate_CancelledContext(t *testing.T) {
	path := testutils.WriteFile(t, "hello.yaml", "id: hello-v1\nnodes:\n  - id: greet\n    type: send_message\n    config:\n      text: Hello!\n")
	rt := newRuntime(t, testConfig())

	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := cli.Simulate(ctx, rt, cli.SimulateOptions{File: path, In: in, Out: &out})
	require.NoError(t, err)
	assert.Contains(t, out.String(), ">>> Interrupted.")
}

func TestSimulate_InvalidFile(t *testing.T) {
	path := testutils.WriteFile(t, "broken.yaml", "id: broken-v1\nnodes:\n  - id: a\n    type: teleport\n")
	rt := newRuntime(t, testConfig())

	err := cli.Simulate(context.Background(), rt, cli.SimulateOptions{File: path, In: strings.NewReader(""), Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, domain.ErrUnknownNodeKind)
}
