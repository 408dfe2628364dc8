/*
Package replyflow runs automated conversations for business messaging accounts.

An automation is a template version: a graph of typed nodes (fixed messages,
AI replies, slot-collecting agents, tool agents, intent detection, routers and
human handoff) joined by edges. Instances deploy a published version in a
workspace and carry the triggers that decide which inbound messages start it.
Every conversation has at most one running session per instance, and the
session remembers where the graph is waiting for the customer.

# Concept

The Engine is the entry point. It selects an automation for an inbound
message, opens or resumes the session of the conversation, and interprets the
graph until a node waits for a reply, hands off to a human or the flow ends.
Turns of one conversation are serialized; stores use optimistic revisions so
concurrent replicas never overwrite each other.

Model calls go through providers with structured output (Google GenAI) or
free-text models over langchaingo whose replies are repaired into JSON. A
failed call never fails the turn: the customer receives the deferral reply and
the failure is recorded on the session.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/replyflow"
		"github.com/aretw0/replyflow/pkg/adapters/memory"
		"github.com/aretw0/replyflow/pkg/domain"
		"github.com/aretw0/replyflow/pkg/dsl"
	)

	func main() {
		b := dsl.New("welcome-v1").Trigger(domain.Trigger{Type: domain.TriggerDirectMessage, MatchMode: domain.MatchAny})
		b.Add("greet").Send("Hi {{contact_name}}! How can we help?").WaitForReply().Go("human")
		b.Add("human").Handoff("support", "", "A teammate will reply shortly.")
		version := b.MustBuild()

		catalog, err := memory.NewCatalogFrom([]*domain.TemplateVersion{version}, &domain.Instance{
			ID: "welcome", WorkspaceID: "acme", TemplateVersionID: version.ID, Active: true,
		})
		if err != nil {
			log.Fatal(err)
		}

		eng, err := replyflow.New(replyflow.WithCatalogStore(catalog), replyflow.WithInstances(catalog))
		if err != nil {
			log.Fatal(err)
		}

		res, err := eng.HandleMessage(context.Background(), replyflow.InboundMessage{
			Conversation: &domain.Conversation{ID: "dm-1", WorkspaceID: "acme", ContactName: "Bea", Channel: domain.ChannelProduction},
			Text:         "hello",
		})
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range res.Turn.Messages {
			log.Println(m.Text)
		}
	}

Preview sessions run the same interpreter against synthetic conversations,
see Engine.StartPreviewSession.
*/
package replyflow
