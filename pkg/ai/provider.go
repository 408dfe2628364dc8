package ai

import (
	"context"
	"fmt"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Role is the author of a chat message sent to a model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-neutral generation request.
type Request struct {
	Model           string
	System          string
	Messages        []Message
	Schema          *Schema
	Temperature     *float64
	ReasoningEffort string
	Tools           []domain.ToolDefinition
	ToolChoice      string
	MaxTokens       int
}

// Response is what a provider returned.
type Response struct {
	Text      string
	ToolCalls []ToolRequest
	Model     string
}

// Provider generates text from a model.
//
// Structured reports whether the provider enforces Request.Schema natively. For
// providers that do not, the schema is described in the prompt and the reply is
// parsed and repaired manually.
type Provider interface {
	Name() string
	Structured() bool
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// ProviderError wraps every failure of a model call: transport, timeout,
// unparseable or schema-violating output. Executors recover from it.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
