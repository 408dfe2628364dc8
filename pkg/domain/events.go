package domain

import (
	"context"
	"time"
)

// NodeEvent is emitted when the interpreter enters or leaves a node.
type NodeEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Channel   Channel   `json:"channel"`
	NodeID    string    `json:"node_id"`
	NodeType  NodeKind  `json:"node_type"`
	Next      string    `json:"next,omitempty"`
}

// TurnEvent is emitted at the start and end of a turn.
type TurnEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	Channel   Channel       `json:"channel"`
	Outcome   string        `json:"outcome,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// ProviderEvent is emitted when a model call fails and the turn degrades.
type ProviderEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	NodeType  NodeKind  `json:"node_type"`
	Err       error     `json:"-"`
}

// StatusEvent is emitted for every session status change.
type StatusEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	From      SessionStatus `json:"from"`
	To        SessionStatus `json:"to"`
	Reason    string        `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTurnStart     func(context.Context, *TurnEvent)
	OnTurnEnd       func(context.Context, *TurnEvent)
	OnNodeEnter     func(context.Context, *NodeEvent)
	OnNodeLeave     func(context.Context, *NodeEvent)
	OnProviderError func(context.Context, *ProviderEvent)
	OnStatusChange  func(context.Context, *StatusEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTurnStart:     chain(h.OnTurnStart, other.OnTurnStart),
		OnTurnEnd:       chain(h.OnTurnEnd, other.OnTurnEnd),
		OnNodeEnter:     chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:     chain(h.OnNodeLeave, other.OnNodeLeave),
		OnProviderError: chain(h.OnProviderError, other.OnProviderError),
		OnStatusChange:  chain(h.OnStatusChange, other.OnStatusChange),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
