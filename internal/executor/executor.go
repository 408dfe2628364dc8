// Package executor runs a single node of an automation graph.
//
// Executors never persist anything. They read the turn input, may call a model
// through the ai package and write node-local state (variables, slots, agent
// counters) into the working session they were given. Flow decisions are returned
// as a Result and applied by the interpreter.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/domain"
)

// DefaultDeferral is sent whenever a model cannot produce a usable reply.
const DefaultDeferral = "Thanks for your message! Let me check on that and get back to you shortly."

// Input is everything a node sees during one execution.
type Input struct {
	Node         *domain.Node
	Version      *domain.TemplateVersion
	Session      *domain.Session
	Conversation *domain.Conversation
	History      []domain.Message
	Incoming     string
}

// Result carries the flow signals of one node execution.
type Result struct {
	Messages  []domain.OutgoingMessage
	ToolCalls []domain.ToolCall

	// Advance leaves the node along Target, or along the first unconditional
	// edge when Target is empty. With no edge to follow the session completes.
	Advance bool
	Target  string
	// Wait ends the turn after this node.
	Wait bool

	Complete       bool
	CompleteReason string
	// Handoff is set when a human must take over.
	Handoff *domain.Escalation

	AskedQuestion bool
	Guarded       bool
	// Degraded is set when ProviderErr replaced the model reply with the deferral.
	Degraded    bool
	ProviderErr error
}

// Executor dispatches nodes to their implementation.
type Executor struct {
	client    *ai.Client
	knowledge *ai.KnowledgeAssembler
	guard     *ai.Guard
	deferral  string
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithClient sets the model client used by AI nodes.
func WithClient(c *ai.Client) Option {
	return func(e *Executor) { e.client = c }
}

// WithKnowledge sets the knowledge assembler used by AI nodes.
func WithKnowledge(k *ai.KnowledgeAssembler) Option {
	return func(e *Executor) { e.knowledge = k }
}

// WithGuard sets the banned-phrase guard applied to model replies.
func WithGuard(g *ai.Guard) Option {
	return func(e *Executor) { e.guard = g }
}

// WithDeferral overrides the deferral reply.
func WithDeferral(text string) Option {
	return func(e *Executor) {
		if strings.TrimSpace(text) != "" {
			e.deferral = text
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an executor. Without a client every AI node degrades to the deferral reply.
func New(opts ...Option) *Executor {
	e := &Executor{
		deferral: DefaultDeferral,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = ai.NewClient()
	}
	return e
}

// Deferral returns the reply used when a model call fails.
func (e *Executor) Deferral() string { return e.deferral }

// Execute runs in.Node. The only error it returns is an invariant violation for
// a node kind it does not know; model failures are folded into the Result.
func (e *Executor) Execute(ctx context.Context, in Input) (Result, error) {
	if in.Node == nil || in.Session == nil {
		return Result{}, &domain.InvariantError{Op: "executor.execute", Err: errors.New("nil node or session")}
	}

	switch cfg := in.Node.Config.(type) {
	case *domain.SendMessageConfig:
		return e.sendMessage(in, cfg), nil
	case *domain.AIReplyConfig:
		return e.aiReply(ctx, in, cfg), nil
	case *domain.AIAgentConfig:
		return e.aiAgent(ctx, in, cfg), nil
	case *domain.LangchainAgentConfig:
		return e.langchainAgent(ctx, in, cfg), nil
	case *domain.DetectIntentConfig:
		return e.detectIntent(ctx, in, cfg), nil
	case *domain.RouterConfig:
		return e.route(in, cfg), nil
	case *domain.HandoffConfig:
		return e.handoff(in, cfg), nil
	default:
		return Result{}, &domain.InvariantError{
			Op:  "executor.execute",
			Err: fmt.Errorf("%w: %q on node %s", domain.ErrUnknownNodeKind, in.Node.Kind(), in.Node.ID),
		}
	}
}

// degrade is the failure path of every model-backed node: send the deferral and hold.
func (e *Executor) degrade(in Input, err error) Result {
	e.logger.Warn("node degraded to deferral reply",
		"session_id", in.Session.ID,
		"node_id", in.Node.ID,
		"node_type", in.Node.Kind(),
		"err", err)
	return Result{
		Messages:    []domain.OutgoingMessage{{From: domain.SenderAI, Text: e.deferral, NodeID: in.Node.ID}},
		Wait:        true,
		Degraded:    true,
		ProviderErr: err,
	}
}

// finishReply clips text and swaps it for the deferral when the guard rejects it.
func (e *Executor) finishReply(in Input, text string, maxSentences int) (string, bool) {
	text = ai.ClipSentences(text, maxSentences)
	if phrase, hit := e.guard.Check(text); hit {
		e.logger.Warn("reply rejected by guard", "session_id", in.Session.ID, "node_id", in.Node.ID, "phrase", phrase)
		return e.deferral, true
	}
	return text, false
}

func (e *Executor) knowledgeFor(ctx context.Context, in Input, scope domain.KnowledgeScope) (*ai.KnowledgeContext, error) {
	if e.knowledge == nil {
		return &ai.KnowledgeContext{}, nil
	}
	kc, err := e.knowledge.Assemble(ctx, in.Session.WorkspaceID, query(in), scope)
	if err != nil {
		return nil, &ai.ProviderError{Provider: "knowledge", Op: "assemble", Err: err}
	}
	return kc, nil
}

// query is the text knowledge is searched with: the incoming message, or the
// last thing the customer said.
func query(in Input) string {
	if q := strings.TrimSpace(in.Incoming); q != "" {
		return q
	}
	for i := len(in.History) - 1; i >= 0; i-- {
		if in.History[i].From == domain.SenderCustomer {
			return in.History[i].Text
		}
	}
	return ""
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Interpolate replaces {{name}} with the session variable or slot of that name.
// Unknown names render empty.
func Interpolate(text string, s *domain.Session, conv *domain.Conversation) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := s.Variables[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		if v, ok := s.SlotValues[name]; ok {
			return v
		}
		if name == "contact_name" && conv != nil {
			return conv.ContactName
		}
		return ""
	})
}
