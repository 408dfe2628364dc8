package dsl

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/replyflow/pkg/domain"
)

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New("welcome-v1")

	b.Add("start").
		Send("Hello, {{contact_name}}!").
		Buttons(domain.Button{Title: "Prices"}).
		WaitForReply().
		Go("route")

	b.Add("route").
		Router(domain.RouterMatchKeyword).
		Branch("price, cost", "pricing").
		Default("faq")

	b.Add("pricing").Send("Plans start at $10.").Label("Pricing").Go("faq")
	b.Add("faq").AIReply("Answer briefly.")

	v, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if !v.Published() {
		t.Errorf("Expected a published version, got %s", v.Status)
	}
	if v.PublishedAt.IsZero() {
		t.Error("Expected PublishedAt to be set")
	}
	if len(v.Nodes) != 4 {
		t.Fatalf("Expected 4 nodes, got %d", len(v.Nodes))
	}
	if v.IndexOf("pricing") != 2 {
		t.Errorf("Expected nodes in insertion order, pricing at %d", v.IndexOf("pricing"))
	}

	entry, ok := v.Entry()
	if !ok || entry.ID != "start" {
		t.Errorf("Expected entry 'start', got %+v", entry)
	}

	start, _ := v.Node("start")
	cfg, ok := start.Config.(*domain.SendMessageConfig)
	if !ok {
		t.Fatalf("Expected send_message config, got %T", start.Config)
	}
	if !cfg.WaitForReply || len(cfg.Buttons) != 1 {
		t.Errorf("Unexpected send config: %+v", cfg)
	}

	out := v.Outgoing("route")
	if len(out) != 1 || out[0].Condition != "price, cost" || out[0].To != "pricing" {
		t.Errorf("Unexpected router edges: %+v", out)
	}
	route, _ := v.Node("route")
	if route.Config.(*domain.RouterConfig).DefaultTarget != "faq" {
		t.Error("Expected router default target 'faq'")
	}
	if v.Label("pricing") != "Pricing" {
		t.Errorf("Expected label 'Pricing', got %q", v.Label("pricing"))
	}
}

func TestBuilder_Draft(t *testing.T) {
	b := New("draft-v1").Template("support", 3).Draft()
	b.Add("only").Handoff("billing", "", "A human will reply soon.")

	v, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if v.Status != domain.VersionDraft {
		t.Errorf("Expected draft, got %s", v.Status)
	}
	if v.TemplateID != "support" || v.Version != 3 {
		t.Errorf("Unexpected template fields: %s v%d", v.TemplateID, v.Version)
	}
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("option on wrong kind", func(t *testing.T) {
		b := New("bad")
		b.Add("start").AIReply("hi").WaitForReply()

		_, err := b.Build()
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if !strings.Contains(err.Error(), "requires a send_message node") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("broken link", func(t *testing.T) {
		b := New("broken")
		b.Add("start").Send("hi").Go("ghost")

		_, err := b.Build()
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Expected invalid input, got %v", err)
		}
		if !strings.Contains(err.Error(), "missing node 'ghost'") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("must build panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Expected MustBuild to panic")
			}
		}()
		New("empty").MustBuild()
	})
}

func TestBuilder_AgentNodes(t *testing.T) {
	b := New("agents")
	b.Add("intent").DetectIntent("intent", "buy", "support").Go("sales")
	b.Add("sales").
		Agent("Qualify the lead.", domain.AgentStep{ID: "qualify", Goal: "Find out the budget"}).
		Slots(domain.SlotDefinition{Name: "budget", Required: true}).
		MaxQuestions(3).
		Go("tools")
	b.Add("tools").
		ToolAgent("Help with orders.", domain.ToolDefinition{Name: "lookup_order"}).
		MaxIterations(5)

	v := b.MustBuild()

	sales, _ := v.Node("sales")
	agent := sales.Config.(*domain.AIAgentConfig)
	if agent.MaxQuestions != 3 || len(agent.Slots) != 1 {
		t.Errorf("Unexpected agent config: %+v", agent)
	}
	tools, _ := v.Node("tools")
	if tools.Config.(*domain.LangchainAgentConfig).MaxIterations != 5 {
		t.Error("Expected MaxIterations 5")
	}
	intent, _ := v.Node("intent")
	if got := intent.Config.(*domain.DetectIntentConfig).TargetVariable(); got != "intent" {
		t.Errorf("Expected variable 'intent', got %q", got)
	}
}
