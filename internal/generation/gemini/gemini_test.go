// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"taproom/cli/internal/generation"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	reply    string
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}},
	}, nil
}

func TestClient_Generate(t *testing.T) {
	fm := &fakeModels{reply: `{"queries":[]}`}
	c := newClient(fm, WithModel("gemini-test"))

	schema := generation.Object("", map[string]*generation.Schema{
		"queries": generation.Array("", generation.String("")),
	}, []string{"queries"})

	out, err := c.Generate(context.Background(), generation.Request{
		SchemaName:   "candidate_queries",
		SystemPrompt: "you write sql",
		History: []generation.Turn{
			{Role: generation.RoleUser, Content: "q1"},
			{Role: generation.RoleAssistant, Content: "a1"},
		},
		CurrentPrompt: "q2",
		Schema:        schema,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"queries":[]}`, string(out))

	assert.Equal(t, "gemini-test", fm.model)
	require.Len(t, fm.contents, 3)
	assert.Equal(t, string(genai.RoleUser), fm.contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), fm.contents[1].Role)
	assert.Equal(t, "q2", fm.contents[2].Parts[0].Text)

	assert.Equal(t, "application/json", fm.config.ResponseMIMEType)
	require.NotNil(t, fm.config.SystemInstruction)
	assert.Equal(t, "you write sql", fm.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, genai.TypeObject, fm.config.ResponseSchema.Type)
	assert.Equal(t, []string{"queries"}, fm.config.ResponseSchema.Required)
	assert.Equal(t, genai.TypeArray, fm.config.ResponseSchema.Properties["queries"].Type)
	assert.Equal(t, genai.TypeString, fm.config.ResponseSchema.Properties["queries"].Items.Type)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
		errMsg string
	}{
		{name: "service error", models: &fakeModels{err: errors.New("quota exceeded")}, errMsg: "quota exceeded"},
		{name: "empty reply", models: &fakeModels{reply: ""}, errMsg: "no content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(tt.models).Generate(context.Background(), generation.Request{SchemaName: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func TestConvert_Nullable(t *testing.T) {
	s := convert(&generation.Schema{Type: generation.TypeNumber, Nullable: true})
	require.NotNil(t, s.Nullable)
	assert.True(t, *s.Nullable)
	assert.Nil(t, convert(nil))
}
