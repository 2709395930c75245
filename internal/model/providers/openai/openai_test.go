package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codeer-ai/lybot/internal/model/contract"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessagesKeepsToolResultAfterToolCall(t *testing.T) {
	msgs := buildMessages("be brief", []contract.Message{
		{Role: contract.RoleUser, Content: "who represents Taipei 1?"},
		{Role: contract.RoleAssistant, ToolCalls: []contract.ToolCall{{ID: "call_1", Name: "get_legislator_by_constituency", Arguments: `{"constituency":"臺北市第1選舉區"}`}}},
		{Role: contract.RoleTool, ToolCallID: "call_1", Name: "get_legislator_by_constituency", Content: "[]"},
	})

	require.Len(t, msgs, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, openai.ToolTypeFunction, msgs[2].ToolCalls[0].Type)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
}

func TestBuildRequestEnablesUsage(t *testing.T) {
	temp := 0.2
	req := buildRequest(contract.Request{Model: "gpt-4.1", Temperature: &temp, Tools: []contract.ToolDef{{Name: "noop"}}})

	assert.True(t, req.Stream)
	require.NotNil(t, req.StreamOptions)
	assert.True(t, req.StreamOptions.IncludeUsage)
	assert.InDelta(t, 0.2, req.Temperature, 0.0001)
	require.Len(t, req.Tools, 1)
	assert.NotNil(t, req.Tools[0].Function.Parameters)
}

func TestStreamMapsChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"get_legislators","arguments":"{\"party\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := New("sk-test", server.URL)
	s, err := p.Stream(context.Background(), contract.Request{Model: "gpt-4.1"})
	require.NoError(t, err)
	defer s.Close()

	var chunks []*contract.Chunk
	for {
		c, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}

	require.Len(t, chunks, 4)
	assert.Equal(t, "Hel", chunks[0].Choices[0].Delta.Content)
	frag := chunks[1].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, contract.ToolCallFragment{Index: 0, ID: "call_a", Name: "get_legislators", Arguments: `{"party":`}, frag)
	assert.Equal(t, "tool_calls", chunks[2].Choices[0].FinishReason)
	assert.Empty(t, chunks[3].Choices)
	require.NotNil(t, chunks[3].Usage)
	assert.Equal(t, 15, chunks[3].Usage.TotalTokens)
}
