package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/replyflow/internal/validator"
	"github.com/aretw0/replyflow/pkg/adapters/file"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadVersionFile(t *testing.T) {
	v, err := file.LoadVersionFile(filepath.Join("testdata", "support.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "support-v1", v.ID)
	assert.Equal(t, "support", v.TemplateID)
	assert.Equal(t, domain.VersionDraft, v.Status, "documents load as drafts unless they say otherwise")
	assert.Equal(t, "greet", v.EntryNodeID)
	assert.Equal(t, "Greeting", v.Label("greet"))
	assert.Equal(t, "pricing", v.Label("pricing"))

	var kinds []domain.NodeKind
	for _, n := range v.Nodes {
		kinds = append(kinds, n.Kind())
	}
	assert.Equal(t, []domain.NodeKind{
		domain.NodeKindSendMessage,
		domain.NodeKindDetectIntent,
		domain.NodeKindRouter,
		domain.NodeKindSendMessage,
		domain.NodeKindAIReply,
		domain.NodeKindHandoff,
	}, kinds)

	greet, _ := v.Node("greet")
	send := greet.Config.(*domain.SendMessageConfig)
	assert.True(t, send.WaitForReply)
	require.Len(t, send.Buttons, 1)
	assert.Equal(t, "price", send.Buttons[0].Payload)

	faq, _ := v.Node("faq")
	reply := faq.Config.(*domain.AIReplyConfig)
	assert.Equal(t, "gemini-2.5-flash", reply.Model.Model)
	require.NotNil(t, reply.Model.Temperature)
	assert.InDelta(t, 0.2, *reply.Model.Temperature, 1e-9)
	assert.Equal(t, 3, reply.Knowledge.TopK)
	assert.Equal(t, 2, reply.MaxReplySentences)

	route, _ := v.Node("route")
	assert.Equal(t, domain.RouterMatchIntent, route.Config.(*domain.RouterConfig).MatchMode)
	assert.Equal(t, []domain.Edge{
		{From: "route", To: "pricing", Condition: "price"},
		{From: "route", To: "human", Condition: "human"},
	}, v.Outgoing("route"))

	require.Len(t, v.Triggers, 1)
	assert.Equal(t, domain.MatchKeyword, v.Triggers[0].MatchMode)
	assert.Equal(t, []string{"help", "price"}, v.Triggers[0].Filters.Keywords)

	assert.NoError(t, validator.ValidateVersion(v))
}

func TestParseVersion_Errors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
	}{
		{"empty", "", domain.ErrInvalidInput},
		{"unknown field", "id: v1\nowner: bob\nnodes: []\n", domain.ErrInvalidInput},
		{"unknown node type", "id: v1\nnodes:\n  - id: a\n    type: carousel\n", domain.ErrUnknownNodeKind},
		{"unknown config key", "id: v1\nnodes:\n  - id: a\n    type: send_message\n    config:\n      txt: hi\n", domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := file.ParseVersion([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestParseVersion_ExplicitEdgesAfterInline(t *testing.T) {
	doc := `
id: v1
status: published
nodes:
  - id: a
    type: send_message
    config: {text: one}
    next: b
  - id: b
    type: send_message
    config: {text: two}
edges:
  - from: b
    to: a
    condition: again
`
	v, err := file.ParseVersion([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, domain.VersionPublished, v.Status)
	assert.Equal(t, 1, v.Version)
	assert.Equal(t, []domain.Edge{{From: "a", To: "b"}, {From: "b", To: "a", Condition: "again"}}, v.Edges)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("id: b\nnodes:\n  - id: x\n    type: handoff\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: a\nnodes:\n  - id: x\n    type: handoff\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# ignored"), 0o644))

	versions, err := file.LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "a", versions[0].ID)
	assert.Equal(t, "b", versions[1].ID)
}
