package gemini

import (
	"testing"

	"github.com/codeer-ai/lybot/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestBuildContentsMergesToolResults(t *testing.T) {
	contents, system := buildContents("answer in zh-TW", []contract.Message{
		{Role: contract.RoleSystem, Content: "extra"},
		{Role: contract.RoleUser, Content: "民進黨有幾席?"},
		{Role: contract.RoleAssistant, ToolCalls: []contract.ToolCall{
			{ID: "c1", Name: "get_party_seat_count", Arguments: `{"party":"民主進步黨"}`},
			{ID: "c2", Name: "get_legislators", Arguments: ""},
		}},
		{Role: contract.RoleTool, ToolCallID: "c1", Name: "get_party_seat_count", Content: `{"seats":51}`},
		{Role: contract.RoleTool, ToolCallID: "c2", Name: "get_legislators", Content: "[]"},
		{Role: contract.RoleAssistant, Content: "51 席"},
	})

	require.NotNil(t, system)
	require.Len(t, system.Parts, 2)
	assert.Equal(t, "answer in zh-TW", system.Parts[0].Text)

	require.Len(t, contents, 4)
	assert.Equal(t, "user", contents[0].Role)

	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "民主進步黨", contents[1].Parts[0].FunctionCall.Args["party"])
	assert.Empty(t, contents[1].Parts[1].FunctionCall.Args)

	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "c1", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "get_legislators", contents[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, "51 席", contents[3].Parts[0].Text)
}

func TestToChunkMapsPartsAndUsage(t *testing.T) {
	s := &chunkStream{}

	first := s.toChunk(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking about seats", Thought: true},
			{Text: "查詢中"},
		}}}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 2, TotalTokenCount: 12},
	})
	require.Len(t, first.Choices, 1)
	assert.Equal(t, "thinking about seats", first.Choices[0].Delta.Thinking)
	assert.Equal(t, "查詢中", first.Choices[0].Delta.Content)
	assert.Equal(t, "", first.Choices[0].FinishReason)
	require.NotNil(t, first.Usage)
	assert.Equal(t, contract.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}, *first.Usage)

	second := s.toChunk(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{FunctionCall: &genai.FunctionCall{Name: "get_legislators", Args: map[string]any{"party": "國民黨"}}},
				{FunctionCall: &genai.FunctionCall{Name: "get_party_seat_count"}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 7, TotalTokenCount: 17},
	})
	frags := second.Choices[0].Delta.ToolCalls
	require.Len(t, frags, 2)
	assert.Equal(t, 0, frags[0].Index)
	assert.JSONEq(t, `{"party":"國民黨"}`, frags[0].Arguments)
	assert.Equal(t, 1, frags[1].Index)
	assert.Equal(t, "{}", frags[1].Arguments)
	assert.Equal(t, "tool_calls", second.Choices[0].FinishReason)
	require.NotNil(t, second.Usage)
	assert.Equal(t, contract.Usage{PromptTokens: 0, CompletionTokens: 5, TotalTokens: 5}, *second.Usage)

	repeat := s.toChunk(&genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 7, TotalTokenCount: 17},
	})
	assert.Nil(t, repeat.Usage)
	assert.Empty(t, repeat.Choices)
}

func TestFinishReasonMapping(t *testing.T) {
	s := &chunkStream{}
	assert.Equal(t, "", s.finishReason(genai.FinishReasonUnspecified))
	assert.Equal(t, "stop", s.finishReason(genai.FinishReasonStop))
	assert.Equal(t, "length", s.finishReason(genai.FinishReasonMaxTokens))
	assert.Equal(t, "content_filter", s.finishReason(genai.FinishReasonSafety))
}

func TestBuildConfig(t *testing.T) {
	temp := 0.5
	p := &Provider{opts: Options{IncludeThoughts: true}}
	cfg := p.buildConfig(contract.Request{MaxTokens: 100, Temperature: &temp, Tools: []contract.ToolDef{{Name: "x", Parameters: map[string]interface{}{"type": "object"}}}}, nil)

	require.NotNil(t, cfg.ThinkingConfig)
	assert.True(t, cfg.ThinkingConfig.IncludeThoughts)
	assert.Equal(t, int32(100), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.5, *cfg.Temperature, 0.0001)
	assert.Nil(t, cfg.TopP)
	require.Len(t, cfg.Tools, 1)
	assert.Len(t, cfg.Tools[0].FunctionDeclarations, 1)
}
