package runtime

import (
	"context"
	"time"

	"github.com/aretw0/replyflow/pkg/domain"
)

func (e *Engine) emitTurnStart(ctx context.Context, s *domain.Session) {
	if e.hooks.OnTurnStart == nil {
		return
	}
	e.hooks.OnTurnStart(ctx, &domain.TurnEvent{
		Timestamp: time.Now(),
		SessionID: s.ID,
		Channel:   s.Channel,
	})
}

func (e *Engine) emitTurnEnd(ctx context.Context, s *domain.Session, res *domain.TurnResult, err error, d time.Duration) {
	if e.hooks.OnTurnEnd == nil {
		return
	}
	e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
		Timestamp: time.Now(),
		SessionID: s.ID,
		Channel:   s.Channel,
		Outcome:   outcome(res, err),
		Duration:  d,
		Err:       err,
	})
}

func outcome(res *domain.TurnResult, err error) string {
	switch {
	case err != nil || res == nil:
		return OutcomeError
	case res.Skipped:
		return OutcomeSkipped
	case res.Session != nil && res.Session.Status == domain.StatusHandoff:
		return OutcomeHandoff
	case res.Session != nil && res.Session.Status == domain.StatusCompleted:
		return OutcomeCompleted
	case res.Degraded:
		return OutcomeDegraded
	}
	return OutcomeOK
}

func (e *Engine) emitNodeEnter(ctx context.Context, s *domain.Session, node *domain.Node) {
	if e.hooks.OnNodeEnter == nil {
		return
	}
	e.hooks.OnNodeEnter(ctx, nodeEvent(s, node, ""))
}

func (e *Engine) emitNodeLeave(ctx context.Context, s *domain.Session, node *domain.Node, next string) {
	if e.hooks.OnNodeLeave == nil {
		return
	}
	e.hooks.OnNodeLeave(ctx, nodeEvent(s, node, next))
}

func nodeEvent(s *domain.Session, node *domain.Node, next string) *domain.NodeEvent {
	return &domain.NodeEvent{
		Timestamp: time.Now(),
		SessionID: s.ID,
		Channel:   s.Channel,
		NodeID:    node.ID,
		NodeType:  node.Kind(),
		Next:      next,
	}
}

func (e *Engine) emitProviderError(ctx context.Context, s *domain.Session, node *domain.Node, err error) {
	if e.hooks.OnProviderError == nil {
		return
	}
	e.hooks.OnProviderError(ctx, &domain.ProviderEvent{
		Timestamp: time.Now(),
		SessionID: s.ID,
		NodeID:    node.ID,
		NodeType:  node.Kind(),
		Err:       err,
	})
}

func (e *Engine) emitStatusChange(ctx context.Context, s *domain.Session, from, to domain.SessionStatus, reason string) {
	if e.hooks.OnStatusChange == nil {
		return
	}
	e.hooks.OnStatusChange(ctx, &domain.StatusEvent{
		Timestamp: time.Now(),
		SessionID: s.ID,
		From:      from,
		To:        to,
		Reason:    reason,
	})
}

// EmitStatusChange lets callers outside a turn, such as an explicit pause,
// report status changes through the same hooks.
func (e *Engine) EmitStatusChange(ctx context.Context, s *domain.Session, from, to domain.SessionStatus, reason string) {
	e.emitStatusChange(ctx, s, from, to, reason)
}
