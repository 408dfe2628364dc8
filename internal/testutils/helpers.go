package testutils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/stretchr/testify/require"
)

// ScriptedProvider is an ai.Provider that returns its replies in order and
// records every request. A nil entry in Errs lets the matching call succeed.
type ScriptedProvider struct {
	ProviderName string
	Native       bool

	mu       sync.Mutex
	Replies  []string
	Errs     []error
	requests []ai.Request
}

// NewScriptedProvider creates a free-text provider named "scripted".
func NewScriptedProvider(replies ...string) *ScriptedProvider {
	return &ScriptedProvider{ProviderName: "scripted", Replies: replies}
}

func (p *ScriptedProvider) Name() string     { return p.ProviderName }
func (p *ScriptedProvider) Structured() bool { return p.Native }

func (p *ScriptedProvider) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, *req)
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(p.Replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	text := p.Replies[0]
	p.Replies = p.Replies[1:]
	return &ai.Response{Text: text, Model: req.Model}, nil
}

// Push queues more replies.
func (p *ScriptedProvider) Push(replies ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Replies = append(p.Replies, replies...)
}

// Requests returns a copy of the recorded requests.
func (p *ScriptedProvider) Requests() []ai.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.Request(nil), p.requests...)
}

// Client wraps p in an ai.Client without retries.
func (p *ScriptedProvider) Client() *ai.Client {
	return ai.NewClient(ai.WithProvider(p), ai.WithRetries(0, 0))
}

// WriteFile writes content under a test temp dir and returns its absolute path.
// It fails the test immediately on error.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write %s", name)
	return path
}
