// Package runtime is the interpreter of automation graphs.
//
// One call to RunTurn advances a session by one logical turn: it resolves the
// current node, runs it and every node that chains from it without waiting for
// the customer, applies the resulting signals to a working copy of the session
// and commits that copy before any message or escalation leaves the engine.
package runtime

import (
	"context"
	"log/slog"

	"github.com/aretw0/replyflow/internal/executor"
	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
)

const (
	// DefaultMaxHops bounds how many nodes one turn may chain.
	DefaultMaxHops = 16
	// DefaultHistoryLimit is how many recent messages are loaded for a turn.
	DefaultHistoryLimit = 20
)

// Engine is the core state machine runner.
type Engine struct {
	executor     *executor.Executor
	versions     ports.VersionRepository
	sessions     ports.SessionStore
	messages     ports.MessageStore
	escalations  ports.EscalationService
	recorder     ports.EventRecorder
	hooks        domain.LifecycleHooks
	maxHops      int
	historyLimit int
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) { e.hooks = hooks }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxHops bounds the number of nodes chained in one turn.
func WithMaxHops(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// WithHistoryLimit sets how many recent messages are loaded per turn.
func WithHistoryLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithEscalations sets the service production handoffs are raised with.
func WithEscalations(s ports.EscalationService) EngineOption {
	return func(e *Engine) { e.escalations = s }
}

// WithRecorder sets the diagnostic event sink.
func WithRecorder(r ports.EventRecorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates an engine.
func NewEngine(exec *executor.Executor, versions ports.VersionRepository, sessions ports.SessionStore, messages ports.MessageStore, opts ...EngineOption) *Engine {
	e := &Engine{
		executor:     exec,
		versions:     versions,
		sessions:     sessions,
		messages:     messages,
		recorder:     nopRecorder{},
		maxHops:      DefaultMaxHops,
		historyLimit: DefaultHistoryLimit,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string, map[string]any) {}
