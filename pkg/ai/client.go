package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/sethvargo/go-retry"
)

// ErrNoProvider is returned when a node names a provider that is not registered.
var ErrNoProvider = errors.New("no such provider")

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
	defaultBackoff    = 200 * time.Millisecond
)

// Client routes generation requests to registered providers and turns raw
// output into typed contracts.
type Client struct {
	providers map[string]Provider
	fallback  string
	timeout   time.Duration
	retries   uint64
	backoff   time.Duration
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers p under p.Name(). The first provider registered is the default.
func WithProvider(p Provider) ClientOption {
	return func(c *Client) {
		if c.fallback == "" {
			c.fallback = p.Name()
		}
		c.providers[p.Name()] = p
	}
}

// WithDefaultProvider selects the provider used when a node does not name one.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) { c.fallback = name }
}

// WithTimeout bounds every provider attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithRetries sets how many times a failed provider call is retried.
func WithRetries(n uint64, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		timeout:   DefaultTimeout,
		retries:   DefaultMaxRetries,
		backoff:   defaultBackoff,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider registered as name, or the default when name is empty.
func (c *Client) Provider(name string) (Provider, error) {
	if name == "" {
		name = c.fallback
	}
	p, ok := c.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoProvider, name)
	}
	return p, nil
}

// Generate runs req against the provider in settings and decodes the reply into T.
//
// Providers with native structured output receive the schema of T directly;
// others get it in the system prompt and their reply goes through ExtractJSON.
// Transport failures are retried with exponential backoff; unparseable output is
// not. Every failure is returned as a *ProviderError.
func Generate[T any](ctx context.Context, c *Client, settings domain.ModelSettings, req *Request) (*T, *Response, error) {
	p, err := c.Provider(settings.Provider)
	if err != nil {
		return nil, nil, &ProviderError{Provider: settings.Provider, Op: "resolve", Err: err}
	}

	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, nil, &ProviderError{Provider: p.Name(), Op: "schema", Err: err}
	}

	call := *req
	call.Model = settings.Model
	call.Temperature = settings.Temperature
	call.ReasoningEffort = settings.ReasoningEffort
	call.Schema = schema
	applyCapabilities(&call)
	if !p.Structured() {
		call.System = call.System + "\n\n" + contractInstructions(schema)
	}

	backoff := retry.WithMaxRetries(c.retries, retry.WithJitterPercent(10, retry.NewExponential(c.backoff)))
	resp, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*Response, error) {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := p.Generate(actx, &call)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("provider call failed", "provider", p.Name(), "model", call.Model, "err", err)
			return nil, retry.RetryableError(err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, nil, &ProviderError{Provider: p.Name(), Op: "generate", Err: err}
	}

	text := resp.Text
	if strings.TrimSpace(text) == "" && len(resp.ToolCalls) > 0 {
		// Native tool calls without content: the loop continues once the tools ran.
		text = `{"reply_text":"","should_continue":true}`
	}
	out, err := decode[T](text, schema)
	if err != nil {
		return nil, resp, &ProviderError{Provider: p.Name(), Op: "parse", Err: err}
	}
	return out, resp, nil
}

func decode[T any](text string, schema *Schema) (*T, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
