package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/replyflow/pkg/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	backend "google.golang.org/genai"
)

type fakeModels struct {
	model    string
	contents []*backend.Content
	config   *backend.GenerateContentConfig
	reply    string
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*backend.Content, config *backend.GenerateContentConfig) (*backend.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &backend.GenerateContentResponse{
		Candidates: []*backend.Candidate{{Content: backend.NewContentFromText(f.reply, backend.RoleModel)}},
	}, nil
}

func TestProvider_Generate(t *testing.T) {
	fake := &fakeModels{reply: `{"reply_text":"hi"}`}
	p := newProvider(fake)

	schema, err := ai.SchemaFor[ai.ReplyOutput]()
	require.NoError(t, err)

	effort := "medium"
	resp, err := p.Generate(context.Background(), &ai.Request{
		System: "be nice",
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: "hello"},
			{Role: ai.RoleAssistant, Content: "hey"},
			{Role: ai.RoleUser, Content: "open?"},
		},
		Schema:          schema,
		ReasoningEffort: effort,
		MaxTokens:       256,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"reply_text":"hi"}`, resp.Text)
	assert.Equal(t, DefaultModel, resp.Model)
	assert.Equal(t, DefaultModel, fake.model)

	require.Len(t, fake.contents, 3)
	assert.Equal(t, backend.RoleUser, fake.contents[0].Role)
	assert.Equal(t, backend.RoleModel, fake.contents[1].Role)

	cfg := fake.config
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Equal(t, schema.Doc, cfg.ResponseJsonSchema)
	require.NotNil(t, cfg.ThinkingConfig)
	assert.Equal(t, int32(8192), *cfg.ThinkingConfig.ThinkingBudget)
	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	assert.Nil(t, cfg.Temperature)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be nice", cfg.SystemInstruction.Parts[0].Text)
}

func TestProvider_Temperature(t *testing.T) {
	fake := &fakeModels{reply: "{}"}
	p := newProvider(fake, WithDefaultModel("gemini-3-pro"))

	temp := 0.5
	_, err := p.Generate(context.Background(), &ai.Request{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro", fake.model)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, 0.5, *fake.config.Temperature, 0.0001)
	assert.Nil(t, fake.config.ThinkingConfig)
	assert.Empty(t, fake.config.ResponseMIMEType)
}

func TestProvider_Errors(t *testing.T) {
	fake := &fakeModels{err: errors.New("quota")}
	p := newProvider(fake)
	_, err := p.Generate(context.Background(), &ai.Request{Model: "gemini-2.5-pro"})
	assert.EqualError(t, err, "quota")

	fake = &fakeModels{reply: "  "}
	p = newProvider(fake)
	_, err = p.Generate(context.Background(), &ai.Request{})
	assert.EqualError(t, err, "empty response")
}
