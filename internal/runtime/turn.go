package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/replyflow/internal/executor"
	"github.com/aretw0/replyflow/pkg/domain"
)

// Turn outcomes reported to OnTurnEnd.
const (
	OutcomeOK        = "ok"
	OutcomeDegraded  = "degraded"
	OutcomeSkipped   = "skipped"
	OutcomeHandoff   = "handoff"
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
)

// TurnRequest is one inbound message for a session.
type TurnRequest struct {
	Instance     *domain.Instance
	Session      *domain.Session
	Conversation *domain.Conversation
	Text         string
	Context      domain.MessageContext
}

// RunTurn advances req.Session by one logical turn.
//
// req.Session is never modified; the updated copy is returned in the result.
// Input errors leave everything untouched. An unresolvable node or any other
// invariant violation persists the original session plus one error event and
// returns the violation. If messages cannot be stored after the session was
// committed, the result is returned together with the PersistenceError so the
// caller can retry delivery using the message IDs.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*domain.TurnResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	version, err := e.loadVersion(ctx, req.Session.TemplateVersionID)
	if err != nil {
		return nil, err
	}

	switch req.Session.Status {
	case domain.StatusPaused, domain.StatusHandoff:
		return &domain.TurnResult{Session: req.Session, Skipped: true, Terminal: req.Session.Status == domain.StatusHandoff}, nil
	case domain.StatusCompleted:
		return nil, &domain.InputError{Field: "session", Reason: "session is completed", Err: domain.ErrSessionTerminal}
	}

	start := time.Now()
	e.emitTurnStart(ctx, req.Session)
	res, err := e.runTurn(ctx, req, version)
	e.emitTurnEnd(ctx, req.Session, res, err, time.Since(start))
	return res, err
}

func (e *Engine) runTurn(ctx context.Context, req TurnRequest, version *domain.TemplateVersion) (*domain.TurnResult, error) {
	s := req.Session.Clone()
	log := e.logger.With("session_id", s.ID, "conversation_id", s.ConversationID, "instance_id", s.InstanceID)

	node, ok := resolve(version, s)
	if !ok {
		return nil, e.fail(ctx, req.Session, &domain.InvariantError{
			Op:  "runtime.resolve",
			Err: fmt.Errorf("%w: pointer %q, step index %d", domain.ErrNodeUnresolvable, s.CurrentNodeID, s.StepIndex),
		})
	}
	if node.ID != s.CurrentNodeID {
		log.Warn("stale node pointer, fell back to step index", "pointer", s.CurrentNodeID, "node_id", node.ID)
		s.CurrentNodeID = node.ID
	}
	s.StepIndex = version.IndexOf(node.ID)

	history, err := e.messages.RecentMessages(ctx, s.ConversationID, e.historyLimit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load messages", Err: err}
	}

	result := &domain.TurnResult{}
	for hop := 0; ; hop++ {
		if hop >= e.maxHops {
			log.Warn("hop limit reached", "max_hops", e.maxHops, "node_id", node.ID)
			s.Record(domain.Event{Kind: domain.EventTurnError, NodeID: node.ID, Message: "hop limit reached"})
			break
		}

		e.emitNodeEnter(ctx, s, node)
		out, err := e.executor.Execute(ctx, executor.Input{
			Node:         node,
			Version:      version,
			Session:      s,
			Conversation: req.Conversation,
			History:      history,
			Incoming:     req.Text,
		})
		if err != nil {
			return nil, e.fail(ctx, req.Session, err)
		}

		result.Visited = append(result.Visited, node.ID)
		result.Messages = append(result.Messages, out.Messages...)
		result.ToolCalls = append(result.ToolCalls, out.ToolCalls...)
		e.recordSideEvents(ctx, s, node, out)
		if out.Degraded {
			result.Degraded = true
		}

		next, stop, err := e.apply(ctx, s, version, node, out, result)
		if err != nil {
			return nil, e.fail(ctx, req.Session, err)
		}
		if stop {
			break
		}
		node = next
	}

	if esc := result.Escalation; esc != nil {
		s.Record(domain.Event{
			Kind:    domain.EventEscalation,
			NodeID:  s.CurrentNodeID,
			Message: esc.Topic,
			Details: map[string]any{"reason": esc.Reason, "summary": esc.Summary},
		})
	}
	if err := e.sessions.Save(ctx, s); err != nil {
		return nil, &domain.PersistenceError{Op: "save session", Err: err}
	}
	result.Session = s
	result.Terminal = s.Status != domain.StatusActive

	if err := e.deliver(ctx, s, result); err != nil {
		return result, err
	}
	e.escalate(ctx, s, result)
	return result, nil
}

// apply moves the session according to out. It returns the next node to run in
// this turn, or stop when the turn is over.
func (e *Engine) apply(ctx context.Context, s *domain.Session, version *domain.TemplateVersion, node *domain.Node, out executor.Result, result *domain.TurnResult) (*domain.Node, bool, error) {
	transition := domain.Event{Kind: domain.EventNodeTransition, NodeID: node.ID, NodeType: node.Kind(), NextNodeID: node.ID}
	if details := resultDetails(out); len(details) > 0 {
		transition.Details = details
	}

	switch {
	case out.Handoff != nil:
		s.Record(transition)
		e.emitNodeLeave(ctx, s, node, node.ID)
		result.Escalation = out.Handoff
		return nil, true, e.transition(ctx, s, domain.StatusHandoff, out.Handoff.Reason)

	case out.Complete:
		s.Record(transition)
		e.emitNodeLeave(ctx, s, node, "")
		return nil, true, e.transition(ctx, s, domain.StatusCompleted, out.CompleteReason)

	case out.Advance:
		target := out.Target
		if target == "" {
			if edge, ok := version.DefaultEdge(node.ID); ok {
				target = edge.To
			}
		}
		if target == "" {
			s.Record(transition)
			e.emitNodeLeave(ctx, s, node, "")
			return nil, true, e.transition(ctx, s, domain.StatusCompleted, "end of flow")
		}
		next, ok := version.Node(target)
		if !ok {
			return nil, true, &domain.InvariantError{
				Op:  "runtime.advance",
				Err: fmt.Errorf("%w: edge from %s targets unknown node %q", domain.ErrNodeUnresolvable, node.ID, target),
			}
		}
		transition.NextNodeID = next.ID
		s.Record(transition)
		e.emitNodeLeave(ctx, s, node, next.ID)
		s.EnterNode(next.ID, version.IndexOf(next.ID))
		if out.Wait {
			return nil, true, nil
		}
		return next, false, nil
	}

	// Hold: the node runs again on the next message.
	s.Record(transition)
	e.emitNodeLeave(ctx, s, node, node.ID)
	return nil, true, nil
}

func (e *Engine) transition(ctx context.Context, s *domain.Session, to domain.SessionStatus, reason string) error {
	from := s.Status
	if err := s.Transition(to, reason); err != nil {
		return err
	}
	e.emitStatusChange(ctx, s, from, to, reason)
	return nil
}

func (e *Engine) recordSideEvents(ctx context.Context, s *domain.Session, node *domain.Node, out executor.Result) {
	if out.Degraded {
		msg := "model call failed"
		if out.ProviderErr != nil {
			msg = out.ProviderErr.Error()
		}
		s.Record(domain.Event{Kind: domain.EventProviderError, NodeID: node.ID, NodeType: node.Kind(), Message: msg})
		e.recorder.Record(ctx, "provider", "model_call_failed", map[string]any{
			"session_id": s.ID,
			"node_id":    node.ID,
			"node_type":  string(node.Kind()),
			"err":        msg,
		})
		e.emitProviderError(ctx, s, node, out.ProviderErr)
	}
	for _, call := range out.ToolCalls {
		s.Record(domain.Event{
			Kind:     domain.EventToolRequest,
			NodeID:   node.ID,
			NodeType: node.Kind(),
			Message:  call.Name,
			Details:  map[string]any{"arguments": call.Arguments, "rationale": call.Rationale},
		})
	}
}

// deliver stores outgoing messages with IDs derived from the committed
// revision, so a retried delivery never duplicates them.
func (e *Engine) deliver(ctx context.Context, s *domain.Session, result *domain.TurnResult) error {
	for i := range result.Messages {
		m := &result.Messages[i]
		m.ID = fmt.Sprintf("%s-r%d-%d", s.ID, s.Revision, i)
		_, err := e.messages.CreateMessage(ctx, domain.Message{
			ID:             m.ID,
			ConversationID: s.ConversationID,
			From:           m.From,
			Text:           m.Text,
			Buttons:        m.Buttons,
			Tags:           m.Tags,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return &domain.PersistenceError{Op: "create message", Err: err}
		}
	}
	return nil
}

// escalate raises a production handoff. Preview sessions only keep the event.
// A failing escalation service is reported but does not fail the committed turn;
// the escalation stays in the result for the caller to retry.
func (e *Engine) escalate(ctx context.Context, s *domain.Session, result *domain.TurnResult) {
	esc := result.Escalation
	if esc == nil {
		return
	}
	attrs := map[string]any{"session_id": s.ID, "topic": esc.Topic, "reason": esc.Reason, "channel": string(s.Channel)}
	if s.Channel == domain.ChannelPreview || e.escalations == nil {
		e.recorder.Record(ctx, "escalation", "escalation_suppressed", attrs)
		return
	}
	if err := e.escalations.Escalate(ctx, *esc); err != nil {
		e.logger.Error("escalation failed", "session_id", s.ID, "conversation_id", s.ConversationID, "err", err)
		attrs["err"] = err.Error()
		e.recorder.Record(ctx, "escalation", "escalation_failed", attrs)
		return
	}
	e.recorder.Record(ctx, "escalation", "escalation_raised", attrs)
}

// fail persists the untouched session plus one error event and returns cause.
func (e *Engine) fail(ctx context.Context, original *domain.Session, cause error) error {
	e.logger.Error("turn aborted", "session_id", original.ID, "node_id", original.CurrentNodeID, "bug", true, "err", cause)
	e.recorder.Record(ctx, "invariant", "turn_aborted", map[string]any{"session_id": original.ID, "err": cause.Error()})

	failed := original.Clone()
	failed.Record(domain.Event{Kind: domain.EventTurnError, NodeID: original.CurrentNodeID, Message: cause.Error()})
	if err := e.sessions.Save(ctx, failed); err != nil {
		return errors.Join(cause, &domain.PersistenceError{Op: "save session", Err: err})
	}
	return cause
}

// resolve finds the node at the session pointer, falling back to StepIndex.
func resolve(v *domain.TemplateVersion, s *domain.Session) (*domain.Node, bool) {
	if n, ok := v.Node(s.CurrentNodeID); ok {
		return n, true
	}
	return v.NodeAt(s.StepIndex)
}

func (e *Engine) loadVersion(ctx context.Context, id string) (*domain.TemplateVersion, error) {
	v, err := e.versions.Version(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.InputError{Field: "template_version_id", Reason: "unknown template version " + id, Err: err}
		}
		return nil, &domain.PersistenceError{Op: "load version", Err: err}
	}
	if !v.Published() {
		return nil, &domain.InputError{Field: "template_version_id", Reason: "version " + id + " is " + string(v.Status), Err: domain.ErrVersionNotPublished}
	}
	return v, nil
}

func validate(req TurnRequest) error {
	switch {
	case req.Instance == nil:
		return domain.NewInputError("instance", "is required")
	case req.Session == nil:
		return domain.NewInputError("session", "is required")
	case req.Conversation == nil:
		return domain.NewInputError("conversation", "is required")
	case req.Session.ID == "":
		return domain.NewInputError("session.id", "is required")
	case req.Session.InstanceID != req.Instance.ID:
		return domain.NewInputError("session.instance_id", "does not match instance "+req.Instance.ID)
	case req.Session.ConversationID != req.Conversation.ID:
		return domain.NewInputError("session.conversation_id", "does not match conversation "+req.Conversation.ID)
	case req.Session.Channel != req.Conversation.Channel:
		return domain.NewInputError("session.channel", "does not match the conversation channel")
	case !req.Instance.Active && req.Session.Channel != domain.ChannelPreview:
		return domain.NewInputError("instance", "instance "+req.Instance.ID+" is not active")
	}
	return nil
}

func resultDetails(out executor.Result) map[string]any {
	d := make(map[string]any)
	if out.Degraded {
		d["degraded"] = true
	}
	if out.Guarded {
		d["guarded"] = true
	}
	if out.AskedQuestion {
		d["asked_question"] = true
	}
	if len(out.Messages) > 0 {
		d["messages"] = len(out.Messages)
	}
	return d
}
