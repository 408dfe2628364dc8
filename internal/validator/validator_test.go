package validator

import (
	"testing"

	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validVersion() *domain.TemplateVersion {
	return &domain.TemplateVersion{
		ID:         "ver-1",
		TemplateID: "tpl-1",
		Version:    1,
		Status:     domain.VersionDraft,
		Nodes: []domain.Node{
			{ID: "welcome", Config: &domain.SendMessageConfig{Text: "Hi!"}},
			{ID: "route", Config: &domain.RouterConfig{MatchMode: domain.RouterMatchKeyword, DefaultTarget: "faq"}},
			{ID: "price", Config: &domain.SendMessageConfig{Text: "It costs 10."}},
			{ID: "faq", Config: &domain.AIReplyConfig{}},
		},
		Edges: []domain.Edge{
			{From: "welcome", To: "route"},
			{From: "route", To: "price", Condition: "price, cost"},
		},
	}
}

func TestValidateVersion(t *testing.T) {
	t.Run("valid graph", func(t *testing.T) {
		assert.NoError(t, ValidateVersion(validVersion()))
	})

	t.Run("router default keeps its target reachable", func(t *testing.T) {
		v := validVersion()
		require.NoError(t, ValidateVersion(v))
		v.Nodes[1].Config = &domain.RouterConfig{MatchMode: domain.RouterMatchKeyword}
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `node "faq" is unreachable`)
	})

	t.Run("broken link", func(t *testing.T) {
		v := validVersion()
		v.Edges = append(v.Edges, domain.Edge{From: "price", To: "ghost"})
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Contains(t, err.Error(), "missing node 'ghost'")
	})

	t.Run("collects every problem", func(t *testing.T) {
		v := validVersion()
		v.Nodes = append(v.Nodes,
			domain.Node{ID: "welcome", Config: &domain.SendMessageConfig{Text: "dup"}},
			domain.Node{ID: "empty"},
			domain.Node{ID: "intent", Config: &domain.DetectIntentConfig{}},
		)
		err := ValidateVersion(v)
		require.Error(t, err)

		var verr *Error
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "ver-1", verr.VersionID)
		assert.Len(t, verr.Problems, 3)
		assert.Contains(t, err.Error(), "found 3 errors")
	})

	t.Run("missing entry", func(t *testing.T) {
		v := validVersion()
		v.EntryNodeID = "nowhere"
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `entry node "nowhere" not found`)
	})

	t.Run("invalid regex condition", func(t *testing.T) {
		v := validVersion()
		v.Nodes[1].Config = &domain.RouterConfig{MatchMode: domain.RouterMatchRegex, DefaultTarget: "faq"}
		v.Edges[1].Condition = "(unclosed"
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid pattern")
	})

	t.Run("variable condition shape", func(t *testing.T) {
		v := validVersion()
		v.Nodes[1].Config = &domain.RouterConfig{MatchMode: domain.RouterMatchVariable, DefaultTarget: "faq"}
		v.Edges[1].Condition = "plan"
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name == value")
	})

	t.Run("trigger pattern must compile", func(t *testing.T) {
		v := validVersion()
		v.Triggers = []domain.Trigger{{
			Type:      domain.TriggerDirectMessage,
			MatchMode: domain.MatchRegex,
			Filters:   domain.TriggerFilters{Pattern: "[a-"},
		}}
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'regexp'")
	})

	t.Run("agent steps", func(t *testing.T) {
		v := validVersion()
		v.Nodes[3].Config = &domain.AIAgentConfig{Steps: []domain.AgentStep{
			{ID: "a", Goal: "ask"},
			{ID: "a", Goal: "ask again"},
		}}
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `duplicate step "a"`)
	})

	t.Run("tool choice must be declared", func(t *testing.T) {
		v := validVersion()
		v.Nodes[3].Config = &domain.LangchainAgentConfig{
			Tools:      []domain.ToolDefinition{{Name: "lookup_order"}},
			ToolChoice: "refund",
		}
		err := ValidateVersion(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tool_choice")
	})

	t.Run("nil version", func(t *testing.T) {
		assert.ErrorIs(t, ValidateVersion(nil), domain.ErrInvalidInput)
	})
}
