package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/domain"
)

// UnknownIntent is stored when the classifier answers outside the configured labels.
const UnknownIntent = "unknown"

// intentHistory is how much transcript the classifier sees.
const intentHistory = 6

func (e *Executor) aiReply(ctx context.Context, in Input, cfg *domain.AIReplyConfig) Result {
	kc, err := e.knowledgeFor(ctx, in, cfg.Knowledge)
	if err != nil {
		return e.degrade(in, err)
	}

	var task []ai.Section
	if cfg.MaxReplySentences > 0 {
		task = append(task, ai.Section{
			Title: "Length",
			Body:  fmt.Sprintf("Answer in at most %d sentences.", cfg.MaxReplySentences),
		})
	}
	system, msgs := ai.BuildPrompt(ai.PromptInput{
		Instructions: cfg.SystemPrompt,
		Business:     kc.Profile,
		Knowledge:    kc.Items,
		Task:         task,
		History:      in.History,
		Incoming:     in.Incoming,
		HistoryLimit: cfg.HistoryLimit,
	})

	out, _, err := ai.Generate[ai.ReplyOutput](ctx, e.client, cfg.Model, &ai.Request{System: system, Messages: msgs})
	if err != nil {
		return e.degrade(in, err)
	}

	text, guarded := e.finishReply(in, out.ReplyText, cfg.MaxReplySentences)
	res := Result{
		Wait:    true,
		Guarded: guarded,
		// Without an outgoing edge the node keeps answering every turn.
		Advance: len(in.Version.Outgoing(in.Node.ID)) > 0,
	}
	if strings.TrimSpace(text) != "" {
		res.Messages = []domain.OutgoingMessage{{From: domain.SenderAI, Text: text, NodeID: in.Node.ID}}
	}
	return res
}

func (e *Executor) detectIntent(ctx context.Context, in Input, cfg *domain.DetectIntentConfig) Result {
	labels := make([]string, 0, len(cfg.Intents)+1)
	for _, it := range cfg.Intents {
		line := it.Name
		if it.Description != "" {
			line += ": " + it.Description
		}
		labels = append(labels, line)
	}
	labels = append(labels, UnknownIntent+": none of the above")

	instructions := cfg.Instructions
	if strings.TrimSpace(instructions) == "" {
		instructions = "Classify the customer's latest message into exactly one intent."
	}
	system, msgs := ai.BuildPrompt(ai.PromptInput{
		Instructions: instructions,
		Task:         []ai.Section{{Title: "Intents", Body: ai.Bullets(labels)}},
		History:      in.History,
		Incoming:     in.Incoming,
		HistoryLimit: intentHistory,
	})

	out, _, err := ai.Generate[ai.IntentOutput](ctx, e.client, cfg.Model, &ai.Request{System: system, Messages: msgs})
	if err != nil {
		return e.degrade(in, err)
	}

	label := UnknownIntent
	for _, it := range cfg.Intents {
		if strings.EqualFold(strings.TrimSpace(out.Intent), it.Name) {
			label = it.Name
			break
		}
	}
	v := cfg.TargetVariable()
	in.Session.Variables[v] = label
	in.Session.Variables[v+"_confidence"] = out.Confidence
	return Result{Advance: true}
}
