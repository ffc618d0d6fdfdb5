package ai

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArkInput(t *testing.T) {
	input := buildArkInput(Request{
		SystemInstruction: "sys",
		History: []Turn{
			{Role: RoleUser, Text: "q1"},
			{Role: RoleModel, Text: "a1"},
		},
		Text: "q2",
	})

	assert.Equal(t, "sys", input["system"])
	assert.Equal(t, "q2", input["query"])

	history, ok := input["history"].([]*schema.Message)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, "q1", history[0].Content)
	assert.Equal(t, schema.Assistant, history[1].Role)
	assert.Equal(t, "a1", history[1].Content)
}
