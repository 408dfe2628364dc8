// Package langchain adapts any langchaingo chat model to ai.Provider.
//
// These models get the output contract in the prompt, so their replies go
// through the JSON repair path. Tools declared by a node are passed natively
// and the calls the model makes come back as ai.ToolRequest.
package langchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Name is the default provider name.
const Name = "langchain"

// Provider implements ai.Provider on top of llms.Model.
type Provider struct {
	name     string
	model    llms.Model
	jsonMode bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithName registers the provider under a different name, e.g. "openai".
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithJSONMode asks the backend for JSON-only output when no tools are declared.
func WithJSONMode(on bool) Option {
	return func(p *Provider) { p.jsonMode = on }
}

// New wraps model.
func New(model llms.Model, opts ...Option) *Provider {
	p := &Provider{name: Name, model: model}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewOpenAI creates a provider backed by an OpenAI-compatible endpoint.
// baseURL may be empty.
func NewOpenAI(token, model, baseURL string, opts ...Option) (*Provider, error) {
	llmOpts := []openai.Option{openai.WithToken(token)}
	if model != "" {
		llmOpts = append(llmOpts, openai.WithModel(model))
	}
	if baseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	return New(llm, append([]Option{WithName("openai"), WithJSONMode(true)}, opts...)...), nil
}

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Structured() bool { return false }

func (p *Provider) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	resp, err := p.model.GenerateContent(ctx, messages(req), p.callOptions(req)...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	choice := resp.Choices[0]
	out := &ai.Response{Text: choice.Content, Model: req.Model}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ai.ToolRequest{
			Name:      tc.FunctionCall.Name,
			Arguments: arguments(tc.FunctionCall.Arguments),
		})
	}
	return out, nil
}

func (p *Provider) callOptions(req *ai.Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.Tools) == 0 {
		if p.jsonMode {
			opts = append(opts, llms.WithJSONMode())
		}
		return opts
	}

	tools := make([]llms.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	opts = append(opts, llms.WithTools(tools))
	if req.ToolChoice != "" {
		opts = append(opts, llms.WithToolChoice(req.ToolChoice))
	}
	return opts
}

func messages(req *ai.Request) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case ai.RoleAssistant:
			role = llms.ChatMessageTypeAI
		case ai.RoleSystem:
			role = llms.ChatMessageTypeSystem
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func arguments(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}
