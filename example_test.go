package replyflow_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/replyflow"
	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/dsl"
	"github.com/aretw0/replyflow/pkg/preview"
)

// pricingFlow greets, waits for the customer and routes on keywords.
func pricingFlow() (*domain.TemplateVersion, *domain.Instance) {
	b := dsl.New("pricing-v1").Trigger(domain.Trigger{Type: domain.TriggerDirectMessage, MatchMode: domain.MatchAny})
	b.Add("greet").Send("Hi {{contact_name}}! Ask about prices or talk to a human.").WaitForReply().Go("route")
	b.Add("route").Router(domain.RouterMatchKeyword).Branch("price, cost", "pricing").Default("human")
	b.Add("pricing").Send("Plans start at $10 per month.")
	b.Add("human").Handoff("support", "", "Connecting you to a teammate.")
	v := b.MustBuild()
	return v, &domain.Instance{ID: "pricing", WorkspaceID: "demo", TemplateVersionID: v.ID, Active: true}
}

// ExampleNew shows an engine that runs entirely in memory, answering a
// production conversation with a flow built in Go.
func ExampleNew() {
	v, inst := pricingFlow()
	catalog, err := memory.NewCatalogFrom([]*domain.TemplateVersion{v}, inst)
	if err != nil {
		log.Fatal(err)
	}
	engine, err := replyflow.New(replyflow.WithCatalogStore(catalog), replyflow.WithInstances(catalog))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	conv := &domain.Conversation{ID: "conv-1", WorkspaceID: "demo", ContactName: "Ana", Channel: domain.ChannelProduction}
	for _, text := range []string{"hello", "how much does it cost?"} {
		res, err := engine.HandleMessage(ctx, replyflow.InboundMessage{Conversation: conv, Text: text})
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range res.Turn.Messages {
			fmt.Printf("%s: %s\n", m.From, m.Text)
		}
		fmt.Println("status:", res.Turn.Session.Status)
	}

	// Output:
	// automation: Hi Ana! Ask about prices or talk to a human.
	// status: active
	// automation: Plans start at $10 per month.
	// status: completed
}

// ExampleEngine_SendPreviewMessage tries a flow as a synthetic customer.
// Preview handoffs are recorded on the session instead of reaching a human.
func ExampleEngine_SendPreviewMessage() {
	v, inst := pricingFlow()
	inst.Active = false
	catalog, err := memory.NewCatalogFrom([]*domain.TemplateVersion{v}, inst)
	if err != nil {
		log.Fatal(err)
	}
	engine, err := replyflow.New(replyflow.WithCatalogStore(catalog), replyflow.WithInstances(catalog))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	p, err := engine.StartPreviewSession(ctx, preview.StartRequest{Instance: inst, Persona: &domain.Persona{Name: "Tester"}})
	if err != nil {
		log.Fatal(err)
	}
	for _, text := range []string{"hi", "I want a person"} {
		res, err := engine.SendPreviewMessage(ctx, p.Session.ID, text)
		if err != nil {
			log.Fatal(err)
		}
		for _, m := range res.Messages {
			fmt.Println(m.Text)
		}
		fmt.Println("status:", res.Session.Status)
	}

	// Output:
	// Hi Tester! Ask about prices or talk to a human.
	// status: active
	// Connecting you to a teammate.
	// status: handoff
}
