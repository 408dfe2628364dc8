package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/replyflow/internal/executor"
	"github.com/aretw0/replyflow/internal/testutils"
	"github.com/aretw0/replyflow/pkg/adapters/memory"
	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession() *domain.Session {
	conv := &domain.Conversation{ID: "conv-1", WorkspaceID: "ws", Channel: domain.ChannelProduction}
	inst := &domain.Instance{ID: "inst-1", TemplateVersionID: "v1"}
	return domain.NewSession("sess-1", conv, inst, "n1", 0, 10)
}

func input(cfg domain.NodeConfig, edges ...domain.Edge) executor.Input {
	node := domain.Node{ID: "n1", Config: cfg}
	v := &domain.TemplateVersion{ID: "v1", Status: domain.VersionPublished, Nodes: []domain.Node{node}, Edges: edges}
	for _, e := range edges {
		if _, ok := v.Node(e.To); !ok {
			v.Nodes = append(v.Nodes, domain.Node{ID: e.To, Config: &domain.SendMessageConfig{Text: e.To}})
		}
	}
	return executor.Input{
		Node:         &v.Nodes[0],
		Version:      v,
		Session:      newSession(),
		Conversation: &domain.Conversation{ID: "conv-1", WorkspaceID: "ws", ContactName: "Ana"},
	}
}

func TestExecute_EveryKindIsHandled(t *testing.T) {
	for _, kind := range domain.AllNodeKinds() {
		t.Run(string(kind), func(t *testing.T) {
			cfg, err := domain.NewNodeConfig(kind)
			require.NoError(t, err)

			p := testutils.NewScriptedProvider(`{"reply_text":"ok","intent":"x"}`)
			ex := executor.New(executor.WithClient(p.Client()))
			_, err = ex.Execute(context.Background(), input(cfg))
			assert.NoError(t, err)
		})
	}
}

// alienConfig satisfies NodeConfig through embedding but is not a known variant.
type alienConfig struct{ domain.NodeConfig }

func (alienConfig) Kind() domain.NodeKind { return "alien" }

func TestExecute_UnknownKindIsInvariant(t *testing.T) {
	ex := executor.New()
	_, err := ex.Execute(context.Background(), input(alienConfig{}))
	require.Error(t, err)
	assert.True(t, domain.IsInvariantViolation(err))
	assert.ErrorIs(t, err, domain.ErrUnknownNodeKind)
}

func TestSendMessage(t *testing.T) {
	in := input(&domain.SendMessageConfig{
		Text:         "Hi {{contact_name}}, your order {{ order_id }} ships {{missing}}soon",
		Buttons:      []domain.Button{{Title: "Track"}},
		Tags:         []string{"lead"},
		WaitForReply: true,
	})
	in.Session.Variables["order_id"] = "A1"

	res, err := executor.New().Execute(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	msg := res.Messages[0]
	assert.Equal(t, domain.SenderAutomation, msg.From)
	assert.Equal(t, "Hi Ana, your order A1 ships soon", msg.Text)
	assert.Equal(t, []string{"lead"}, msg.Tags)
	assert.Len(t, msg.Buttons, 1)
	assert.True(t, res.Advance)
	assert.True(t, res.Wait)
}

func TestAIReply(t *testing.T) {
	p := testutils.NewScriptedProvider("```json\n{\"reply_text\": \"We open at 9. We close at 6. Sundays we rest.\"}\n```")
	ex := executor.New(executor.WithClient(p.Client()))

	in := input(&domain.AIReplyConfig{MaxReplySentences: 2})
	in.Incoming = "What are your hours?"
	res, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, domain.SenderAI, res.Messages[0].From)
	assert.Equal(t, "We open at 9. We close at 6.", res.Messages[0].Text)
	assert.True(t, res.Wait)
	assert.False(t, res.Advance, "no outgoing edge keeps the node")

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].System, "at most 2 sentences")
	assert.Equal(t, "What are your hours?", reqs[0].Messages[len(reqs[0].Messages)-1].Content)
}

func TestAIReply_UsesKnowledge(t *testing.T) {
	kb := memory.NewKnowledge()
	kb.AddItems("ws", domain.KnowledgeItem{ID: "hours", Title: "Opening hours", Content: "Open 9 to 6"})
	p := testutils.NewScriptedProvider(`{"reply_text":"9 to 6"}`)
	ex := executor.New(
		executor.WithClient(p.Client()),
		executor.WithKnowledge(ai.NewKnowledgeAssembler(ai.WithSearcher(kb), ai.WithLister(kb))),
	)

	in := input(&domain.AIReplyConfig{Knowledge: domain.KnowledgeScope{ItemIDs: []string{"hours"}}})
	in.Incoming = "opening hours?"
	_, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, p.Requests()[0].System, "Open 9 to 6")
}

func TestAIReply_ProviderFailureDefers(t *testing.T) {
	p := testutils.NewScriptedProvider("this is not json at all")
	ex := executor.New(executor.WithClient(p.Client()), executor.WithDeferral("One moment please."))

	in := input(&domain.AIReplyConfig{}, domain.Edge{From: "n1", To: "n2"})
	res, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	var perr *ai.ProviderError
	require.ErrorAs(t, res.ProviderErr, &perr)
	assert.Equal(t, "parse", perr.Op)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "One moment please.", res.Messages[0].Text)
	assert.False(t, res.Advance)
	assert.False(t, res.Complete)
	assert.Nil(t, res.Handoff)
}

func TestAIReply_GuardReplacesBannedReply(t *testing.T) {
	p := testutils.NewScriptedProvider(`{"reply_text":"Sure, we guarantee a full refund."}`)
	ex := executor.New(executor.WithClient(p.Client()), executor.WithGuard(ai.NewGuard("full refund")))

	res, err := ex.Execute(context.Background(), input(&domain.AIReplyConfig{}))
	require.NoError(t, err)
	assert.True(t, res.Guarded)
	assert.Equal(t, executor.DefaultDeferral, res.Messages[0].Text)
}

func TestDetectIntent(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{`{"intent":"PRICING","confidence":0.9}`, "pricing"},
		{`{"intent":"weather"}`, executor.UnknownIntent},
	}
	for _, tc := range cases {
		p := testutils.NewScriptedProvider(tc.reply)
		ex := executor.New(executor.WithClient(p.Client()))
		in := input(&domain.DetectIntentConfig{Intents: []domain.IntentDefinition{{Name: "pricing"}, {Name: "support"}}})

		res, err := ex.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, res.Advance)
		assert.False(t, res.Wait)
		assert.Empty(t, res.Messages, "classification is never shown to the customer")
		assert.Equal(t, tc.want, in.Session.Variables["intent"])
	}
}

func TestRouter(t *testing.T) {
	edges := []domain.Edge{
		{From: "n1", To: "sales", Condition: "pricing"},
		{From: "n1", To: "help", Condition: "support"},
		{From: "n1", To: "fallback"},
	}

	t.Run("intent", func(t *testing.T) {
		in := input(&domain.RouterConfig{MatchMode: domain.RouterMatchIntent}, edges...)
		in.Session.Variables["intent"] = "Support"
		res, err := executor.New().Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "help", res.Target)
		assert.True(t, res.Advance)
	})

	t.Run("keyword first match wins", func(t *testing.T) {
		kw := []domain.Edge{
			{From: "n1", To: "sales", Condition: "price, cost"},
			{From: "n1", To: "help", Condition: "broken,cost"},
		}
		in := input(&domain.RouterConfig{MatchMode: domain.RouterMatchKeyword}, kw...)
		in.Incoming = "What does it COST?"
		res, err := executor.New().Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "sales", res.Target)
	})

	t.Run("variable", func(t *testing.T) {
		vr := []domain.Edge{
			{From: "n1", To: "vip", Condition: "tier == gold"},
			{From: "n1", To: "std", Condition: "tier == 'silver'"},
		}
		in := input(&domain.RouterConfig{MatchMode: domain.RouterMatchVariable}, vr...)
		in.Session.SlotValues["tier"] = "silver"
		res, err := executor.New().Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "std", res.Target)
	})

	t.Run("regex skips invalid patterns", func(t *testing.T) {
		rx := []domain.Edge{
			{From: "n1", To: "bad", Condition: "([a-"},
			{From: "n1", To: "order", Condition: `#\d{4}`},
		}
		in := input(&domain.RouterConfig{MatchMode: domain.RouterMatchRegex}, rx...)
		in.Incoming = "where is #1234"
		res, err := executor.New().Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "order", res.Target)
	})

	t.Run("default target", func(t *testing.T) {
		in := input(&domain.RouterConfig{MatchMode: domain.RouterMatchIntent, DefaultTarget: "fallback"}, edges...)
		in.Session.Variables["intent"] = "other"
		res, err := executor.New().Execute(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, "fallback", res.Target)
	})
}

func TestHandoff(t *testing.T) {
	in := input(&domain.HandoffConfig{Topic: "billing", Summary: "Customer {{contact_name}} needs help", Message: "A teammate will reply soon."})
	res, err := executor.New().Execute(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, res.Handoff)
	assert.Equal(t, "billing", res.Handoff.Topic)
	assert.Equal(t, "Customer Ana needs help", res.Handoff.Summary)
	assert.Equal(t, "conv-1", res.Handoff.ConversationID)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, domain.SenderAutomation, res.Messages[0].From)
}

func agentConfig() *domain.AIAgentConfig {
	return &domain.AIAgentConfig{
		Steps: []domain.AgentStep{{ID: "contact", Goal: "Get the phone number", ExpectedFields: []string{"phone"}}},
		Slots: []domain.SlotDefinition{{Name: "phone", Required: true}, {Name: "name"}},
	}
}

func TestAIAgent_SlotCollectionAcrossTurns(t *testing.T) {
	p := testutils.NewScriptedProvider(
		`{"reply_text":"What is your phone number?","missing_fields":["phone"],"asked_question":true,"collected_fields":{"name":"Ana"}}`,
		`{"reply_text":"Thanks!","collected_fields":{"phone":"555-0101","name":""},"missing_fields":[],"advance_step":true}`,
	)
	ex := executor.New(executor.WithClient(p.Client()))
	in := input(agentConfig(), domain.Edge{From: "n1", To: "done"})

	res, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone"}, in.Session.MissingFields)
	assert.Equal(t, 1, in.Session.QuestionsAsked)
	assert.True(t, res.AskedQuestion)
	assert.False(t, res.Advance)

	res, err = ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"phone": "555-0101", "name": "Ana"}, in.Session.SlotValues, "empty values never overwrite")
	assert.Empty(t, in.Session.MissingFields)
	assert.True(t, res.Advance)
	assert.Contains(t, p.Requests()[1].System, "phone = unknown")
}

func TestAIAgent_MissingFieldsPersistWhenOmitted(t *testing.T) {
	p := testutils.NewScriptedProvider(`{"reply_text":"Hmm, ok."}`)
	ex := executor.New(executor.WithClient(p.Client()))
	in := input(agentConfig())
	in.Session.MissingFields = []string{"phone"}

	_, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"phone"}, in.Session.MissingFields)
}

func TestAIAgent_QuestionBudget(t *testing.T) {
	cfg := agentConfig()
	cfg.MaxQuestions = 2
	p := testutils.NewScriptedProvider(
		`{"reply_text":"Q1?","asked_question":true}`,
		`{"reply_text":"Q2?","asked_question":true}`,
		`{"reply_text":"Q3?","asked_question":true}`,
	)
	ex := executor.New(executor.WithClient(p.Client()))
	in := input(cfg)

	var asked []bool
	for range 3 {
		res, err := ex.Execute(context.Background(), in)
		require.NoError(t, err)
		asked = append(asked, res.AskedQuestion)
	}
	assert.Equal(t, []bool{true, true, false}, asked)
	assert.Equal(t, 2, in.Session.QuestionsAsked)
	assert.Contains(t, p.Requests()[2].System, "Do not ask the customer any more questions.")
}

func TestAIAgent_ShouldStopHandsOff(t *testing.T) {
	p := testutils.NewScriptedProvider(`{"reply_text":"Let me get a human.","should_stop":true,"stop_reason":"legal threat"}`)
	ex := executor.New(executor.WithClient(p.Client()))

	res, err := ex.Execute(context.Background(), input(agentConfig()))
	require.NoError(t, err)
	require.NotNil(t, res.Handoff)
	assert.Equal(t, "legal threat", res.Handoff.Reason)
	assert.Equal(t, "agent_stop", res.Handoff.Topic)
}

func TestAIAgent_EndConversation(t *testing.T) {
	p := testutils.NewScriptedProvider(`{"reply_text":"Bye!","end_conversation":true}`)
	ex := executor.New(executor.WithClient(p.Client()))

	res, err := ex.Execute(context.Background(), input(agentConfig()))
	require.NoError(t, err)
	assert.True(t, res.Complete)
}

func TestLangchainAgent_IterationCap(t *testing.T) {
	cfg := &domain.LangchainAgentConfig{
		Tools:         []domain.ToolDefinition{{Name: "lookup_order", Description: "find an order"}},
		MaxIterations: 2,
	}
	p := testutils.NewScriptedProvider(
		`{"reply_text":"Checking.","should_continue":true,"tool_calls":[{"name":"lookup_order","arguments":{"id":"A1"},"rationale":"customer asked"}]}`,
		`{"reply_text":"Still checking.","should_continue":true}`,
	)
	ex := executor.New(executor.WithClient(p.Client()))
	in := input(cfg)

	res, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Advance)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "lookup_order", res.ToolCalls[0].Name)
	assert.Equal(t, "A1", res.ToolCalls[0].Arguments["id"])

	res, err = ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2, in.Session.Iterations)
	assert.True(t, res.Advance, "the cap overrides should_continue")

	reqs := p.Requests()
	require.Len(t, reqs[0].Tools, 1)
	assert.Contains(t, reqs[1].System, "turn 2 of at most 2")
}

func TestLangchainAgent_TransportErrorDefers(t *testing.T) {
	p := testutils.NewScriptedProvider(`{"reply_text":"Found it.","should_continue":true}`)
	p.Errs = []error{errors.New("connection reset"), errors.New("connection reset")}
	ex := executor.New(executor.WithClient(p.Client()))
	in := input(&domain.LangchainAgentConfig{MaxIterations: 3})

	for range 2 {
		res, err := ex.Execute(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.False(t, res.Advance)
		assert.Zero(t, in.Session.Iterations, "failed calls do not use up iterations")
	}

	res, err := ex.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.False(t, res.Advance, "should_continue is honoured below the cap")
	assert.Equal(t, 1, in.Session.Iterations)
	assert.Contains(t, p.Requests()[2].System, "turn 1 of at most 3")
}
