package executor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/domain"
)

func (e *Executor) aiAgent(ctx context.Context, in Input, cfg *domain.AIAgentConfig) Result {
	s := in.Session
	if len(cfg.Steps) == 0 {
		return Result{Advance: true}
	}
	step := min(max(s.AgentStep, 0), len(cfg.Steps)-1)

	kc, err := e.knowledgeFor(ctx, in, cfg.Knowledge)
	if err != nil {
		return e.degrade(in, err)
	}
	system, msgs := ai.BuildPrompt(ai.PromptInput{
		Instructions: cfg.SystemPrompt,
		Business:     kc.Profile,
		Knowledge:    kc.Items,
		Task:         agentTask(cfg, s, step),
		History:      in.History,
		Incoming:     in.Incoming,
		HistoryLimit: cfg.HistoryLimit,
	})

	out, _, err := ai.Generate[ai.AgentOutput](ctx, e.client, cfg.Model, &ai.Request{System: system, Messages: msgs})
	if err != nil {
		return e.degrade(in, err)
	}

	asked := out.AskedQuestion
	if cfg.MaxQuestions > 0 && s.QuestionsAsked >= cfg.MaxQuestions {
		asked = false
	}
	if asked {
		s.QuestionsAsked++
	}

	mergeSlots(s, out.CollectedFields)
	if out.MissingFields != nil {
		s.MissingFields = slices.Clone(out.MissingFields)
	}
	s.MissingFields = slices.DeleteFunc(s.MissingFields, func(f string) bool { return s.SlotValues[f] != "" })
	if out.StepSummary != "" {
		s.Variables["step_summary."+cfg.Steps[step].ID] = out.StepSummary
	}

	text, guarded := e.finishReply(in, out.ReplyText, cfg.MaxReplySentences)
	res := Result{Wait: true, AskedQuestion: asked, Guarded: guarded}
	if strings.TrimSpace(text) != "" {
		res.Messages = []domain.OutgoingMessage{{From: domain.SenderAI, Text: text, NodeID: in.Node.ID}}
	}

	switch {
	case out.ShouldStop:
		res.Handoff = stopEscalation(in, out.StopReason, out.StepSummary)
	case out.EndConversation:
		res.Complete = true
		res.CompleteReason = "end condition met"
	case out.AdvanceStep:
		s.AgentStep = step + 1
		if s.AgentStep >= len(cfg.Steps) {
			res.Advance = true
		}
	}
	return res
}

func agentTask(cfg *domain.AIAgentConfig, s *domain.Session, step int) []ai.Section {
	steps := make([]string, len(cfg.Steps))
	for i, st := range cfg.Steps {
		marker := ""
		if i == step {
			marker = " (current)"
		}
		steps[i] = fmt.Sprintf("%d. %s: %s%s", i+1, st.ID, st.Goal, marker)
	}

	current := cfg.Steps[step]
	currentBody := current.Goal
	if len(current.ExpectedFields) > 0 {
		currentBody += "\nExpected fields: " + strings.Join(current.ExpectedFields, ", ")
	}

	slots := make([]string, 0, len(cfg.Slots))
	for _, sl := range cfg.Slots {
		value := s.SlotValues[sl.Name]
		if value == "" {
			value = "unknown"
		}
		line := sl.Name + " = " + value
		if sl.Required {
			line += " (required)"
		}
		if sl.Description != "" {
			line += " - " + sl.Description
		}
		slots = append(slots, line)
	}

	budget := "You may ask as many questions as needed."
	if cfg.MaxQuestions > 0 {
		left := cfg.MaxQuestions - s.QuestionsAsked
		if left <= 0 {
			budget = "Do not ask the customer any more questions."
		} else {
			budget = fmt.Sprintf("You may ask at most %d more question(s).", left)
		}
	}

	sections := []ai.Section{
		{Title: "Steps", Body: strings.Join(steps, "\n")},
		{Title: "Current step", Body: currentBody},
	}
	if len(slots) > 0 {
		sections = append(sections, ai.Section{Title: "Slots", Body: ai.Bullets(slots)})
	}
	sections = append(sections,
		ai.Section{Title: "Missing fields", Body: ai.Bullets(s.MissingFields)},
		ai.Section{Title: "End conditions", Body: ai.Bullets(cfg.EndConditions)},
		ai.Section{Title: "Stop conditions", Body: ai.Bullets(cfg.StopConditions)},
		ai.Section{Title: "Question budget", Body: budget},
	)
	return sections
}

func (e *Executor) langchainAgent(ctx context.Context, in Input, cfg *domain.LangchainAgentConfig) Result {
	s := in.Session
	turn := s.Iterations + 1

	kc, err := e.knowledgeFor(ctx, in, cfg.Knowledge)
	if err != nil {
		return e.degrade(in, err)
	}

	tools := make([]string, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools = append(tools, t.Name+": "+t.Description)
	}
	iteration := fmt.Sprintf("This is turn %d.", turn)
	if cfg.MaxIterations > 0 {
		iteration = fmt.Sprintf("This is turn %d of at most %d.", turn, cfg.MaxIterations)
	}
	system, msgs := ai.BuildPrompt(ai.PromptInput{
		Instructions: cfg.SystemPrompt,
		Business:     kc.Profile,
		Knowledge:    kc.Items,
		Task: []ai.Section{
			{Title: "Tools", Body: ai.Bullets(tools)},
			{Title: "End conditions", Body: ai.Bullets(cfg.EndConditions)},
			{Title: "Stop conditions", Body: ai.Bullets(cfg.StopConditions)},
			{Title: "Iteration", Body: iteration},
		},
		History:      in.History,
		Incoming:     in.Incoming,
		HistoryLimit: cfg.HistoryLimit,
	})

	out, resp, err := ai.Generate[ai.ToolAgentOutput](ctx, e.client, cfg.Model, &ai.Request{
		System:     system,
		Messages:   msgs,
		Tools:      cfg.Tools,
		ToolChoice: cfg.ToolChoice,
	})
	if err != nil {
		return e.degrade(in, err)
	}
	// Only answered turns count against the iteration cap.
	s.Iterations = turn

	text, guarded := e.finishReply(in, out.ReplyText, cfg.MaxReplySentences)
	res := Result{Wait: true, AskedQuestion: out.AskedQuestion, Guarded: guarded}
	if strings.TrimSpace(text) != "" {
		res.Messages = []domain.OutgoingMessage{{From: domain.SenderAI, Text: text, NodeID: in.Node.ID}}
	}

	requests := out.ToolCalls
	if resp != nil {
		requests = append(requests, resp.ToolCalls...)
	}
	for _, r := range requests {
		res.ToolCalls = append(res.ToolCalls, domain.ToolCall{Name: r.Name, Arguments: r.Arguments, Rationale: r.Rationale})
	}

	capped := cfg.MaxIterations > 0 && s.Iterations >= cfg.MaxIterations
	cont := (out.ShouldContinue || out.AskedQuestion) && !capped

	switch {
	case out.ShouldStop:
		res.Handoff = stopEscalation(in, out.StopReason, "")
	case out.EndConversation:
		res.Complete = true
		res.CompleteReason = "end condition met"
	case !cont:
		res.Advance = true
	}
	return res
}

// mergeSlots copies collected values into the session. Empty values never
// overwrite what is already known.
func mergeSlots(s *domain.Session, collected map[string]string) {
	if s.SlotValues == nil {
		s.SlotValues = make(map[string]string)
	}
	for k, v := range collected {
		if v = strings.TrimSpace(v); v != "" {
			s.SlotValues[k] = v
		}
	}
}

func stopEscalation(in Input, reason, summary string) *domain.Escalation {
	if strings.TrimSpace(reason) == "" {
		reason = "stop condition met"
	}
	if summary == "" {
		summary = slotSummary(in.Session)
	}
	return &domain.Escalation{
		ConversationID: in.Session.ConversationID,
		SessionID:      in.Session.ID,
		Topic:          "agent_stop",
		Reason:         reason,
		Summary:        summary,
	}
}
