package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsageAdd(t *testing.T) {
	u := Usage{}
	u = u.Add(Usage{PromptTokens: 10})
	u = u.Add(Usage{CompletionTokens: 5})
	assert.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, u)

	u = u.Add(Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 6, TotalTokens: 17}, u)
	assert.True(t, u.Known())
	assert.False(t, UnknownUsage().Known())
	assert.True(t, Usage{}.IsZero())
}

func TestCloneMessagesDoesNotAlias(t *testing.T) {
	in := []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "x", Arguments: "{}"}}}}
	out := CloneMessages(in)
	out[0].ToolCalls[0].ID = "b"
	out[0].Role = RoleUser

	assert.Equal(t, "a", in[0].ToolCalls[0].ID)
	assert.Equal(t, RoleAssistant, in[0].Role)
	assert.Nil(t, CloneMessages(nil))
}
