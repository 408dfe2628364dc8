// Package genai adapts Google's GenAI SDK to ai.Provider using native structured output.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/replyflow/pkg/ai"
	backend "google.golang.org/genai"
)

// Name is the provider name nodes use to select this adapter.
const Name = "genai"

// DefaultModel is used when a node does not set one.
const DefaultModel = "gemini-2.5-flash"

// thinkingBudgets maps reasoning effort to a thinking token budget.
var thinkingBudgets = map[string]int32{
	"low":    1024,
	"medium": 8192,
	"high":   24576,
}

// generator is the subset of *genai.Models the provider needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*backend.Content, config *backend.GenerateContentConfig) (*backend.GenerateContentResponse, error)
}

// Provider implements ai.Provider on top of the Gemini API.
type Provider struct {
	models       generator
	defaultModel string
}

// Option configures a Provider.
type Option func(*Provider)

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) Option {
	return func(p *Provider) { p.defaultModel = model }
}

// New creates a provider with an API key for the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := backend.NewClient(ctx, &backend.ClientConfig{
		APIKey:  apiKey,
		Backend: backend.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return newProvider(client.Models, opts...), nil
}

func newProvider(models generator, opts ...Option) *Provider {
	p := &Provider{models: models, defaultModel: DefaultModel}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string     { return Name }
func (p *Provider) Structured() bool { return true }

// Generate sends the request with the output schema as responseJsonSchema.
// Tools are not declared natively; the output contract carries tool requests.
func (p *Provider) Generate(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	resp, err := p.models.GenerateContent(ctx, model, contents(req.Messages), config(req))
	if err != nil {
		return nil, err
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty response")
	}
	return &ai.Response{Text: text, Model: model}, nil
}

func config(req *ai.Request) *backend.GenerateContentConfig {
	cfg := &backend.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = backend.NewContentFromText(req.System, backend.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = backend.Ptr(float32(*req.Temperature))
	}
	if budget, ok := thinkingBudgets[req.ReasoningEffort]; ok {
		cfg.ThinkingConfig = &backend.ThinkingConfig{ThinkingBudget: backend.Ptr(budget)}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.Schema.Doc
	}
	return cfg
}

func contents(msgs []ai.Message) []*backend.Content {
	out := make([]*backend.Content, 0, len(msgs))
	for _, m := range msgs {
		role := backend.Role(backend.RoleUser)
		if m.Role == ai.RoleAssistant {
			role = backend.RoleModel
		}
		out = append(out, backend.NewContentFromText(m.Content, role))
	}
	return out
}
