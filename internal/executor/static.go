package executor

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/aretw0/replyflow/pkg/domain"
)

func (e *Executor) sendMessage(in Input, cfg *domain.SendMessageConfig) Result {
	return Result{
		Messages: []domain.OutgoingMessage{{
			From:    domain.SenderAutomation,
			Text:    Interpolate(cfg.Text, in.Session, in.Conversation),
			Buttons: slices.Clone(cfg.Buttons),
			Tags:    slices.Clone(cfg.Tags),
			NodeID:  in.Node.ID,
		}},
		Advance: true,
		Wait:    cfg.WaitForReply,
	}
}

// route picks the first outgoing edge whose condition matches, then the
// configured default target. An empty Target falls back to the first
// unconditional edge in the interpreter.
func (e *Executor) route(in Input, cfg *domain.RouterConfig) Result {
	res := Result{Advance: true}
	for _, edge := range in.Version.Outgoing(in.Node.ID) {
		cond := strings.TrimSpace(edge.Condition)
		if cond == "" {
			continue
		}
		ok, err := matchEdge(cfg, cond, in)
		if err != nil {
			e.logger.Warn("router condition skipped", "node_id", in.Node.ID, "condition", cond, "err", err)
			continue
		}
		if ok {
			res.Target = edge.To
			return res
		}
	}
	res.Target = cfg.DefaultTarget
	return res
}

func matchEdge(cfg *domain.RouterConfig, cond string, in Input) (bool, error) {
	switch cfg.MatchMode {
	case domain.RouterMatchIntent:
		name := cfg.Variable
		if name == "" {
			name = "intent"
		}
		return strings.EqualFold(cond, variable(in.Session, name)), nil

	case domain.RouterMatchKeyword:
		text := strings.ToLower(in.Incoming)
		for _, kw := range strings.Split(cond, ",") {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
				return true, nil
			}
		}
		return false, nil

	case domain.RouterMatchVariable:
		name, want := cfg.Variable, cond
		if key, value, ok := strings.Cut(cond, "=="); ok {
			name, want = strings.TrimSpace(key), strings.TrimSpace(value)
		}
		if name == "" {
			return false, fmt.Errorf("no variable to compare")
		}
		want = strings.Trim(want, `"'`)
		return strings.EqualFold(variable(in.Session, name), want), nil

	case domain.RouterMatchRegex:
		re, err := regexp.Compile(cond)
		if err != nil {
			return false, err
		}
		return re.MatchString(in.Incoming), nil
	}
	return false, fmt.Errorf("unknown match mode %q", cfg.MatchMode)
}

func variable(s *domain.Session, name string) string {
	if v, ok := s.Variables[name]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return s.SlotValues[name]
}

func (e *Executor) handoff(in Input, cfg *domain.HandoffConfig) Result {
	topic := cfg.Topic
	if topic == "" {
		topic = "handoff"
	}
	summary := Interpolate(cfg.Summary, in.Session, in.Conversation)
	if strings.TrimSpace(summary) == "" {
		summary = slotSummary(in.Session)
	}

	res := Result{
		Wait: true,
		Handoff: &domain.Escalation{
			ConversationID: in.Session.ConversationID,
			SessionID:      in.Session.ID,
			Topic:          topic,
			Reason:         "handoff node " + in.Node.ID,
			Summary:        summary,
		},
	}
	if msg := Interpolate(cfg.Message, in.Session, in.Conversation); strings.TrimSpace(msg) != "" {
		res.Messages = []domain.OutgoingMessage{{From: domain.SenderAutomation, Text: msg, NodeID: in.Node.ID}}
	}
	return res
}

// slotSummary lists collected slots in name order.
func slotSummary(s *domain.Session) string {
	if len(s.SlotValues) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.SlotValues))
	for k := range s.SlotValues {
		names = append(names, k)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+": "+s.SlotValues[k])
	}
	return strings.Join(parts, "; ")
}
