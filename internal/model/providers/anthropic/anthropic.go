package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/codeer-ai/lybot/internal/model/contract"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

type Provider struct {
	client anthropic.Client
}

func New(apiKey, baseURL string) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error) {
	s := p.client.Messages.NewStreaming(ctx, buildParams(req))
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	return &chunkStream{stream: s, toolIndex: make(map[int64]int)}, nil
}

func buildParams(req contract.Request) anthropic.MessageNewParams {
	modelName := req.Model
	if modelName == "" {
		modelName = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(modelName),
		MaxTokens:     maxTokens,
		Messages:      buildMessages(req.Messages),
		Tools:         buildTools(req.Tools),
		StopSequences: req.Stop,
	}

	var system []anthropic.TextBlockParam
	if req.Instructions != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, m := range req.Messages {
		if m.Role == contract.RoleSystem && m.Content != "" {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	params.System = system

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	return params
}

// buildMessages maps history to Anthropic turns. Tool results ride in user
// turns and consecutive results are merged into one.
func buildMessages(in []contract.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	lastIsToolResult := false

	for _, m := range in {
		switch m.Role {
		case contract.RoleSystem:
			continue

		case contract.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if args == "" || !json.Valid([]byte(args)) {
					args = "{}"
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(args), tc.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
			lastIsToolResult = false

		case contract.RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)
			if lastIsToolResult {
				last := &messages[len(messages)-1]
				last.Content = append(last.Content, block)
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(block))
			lastIsToolResult = true

		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			lastIsToolResult = false
		}
	}

	return messages
}

func buildTools(defs []contract.ToolDef) []anthropic.ToolUnionParam {
	var tools []anthropic.ToolUnionParam
	for _, t := range defs {
		tool := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: map[string]interface{}{}},
		}
		if t.Parameters != nil {
			if props, ok := t.Parameters["properties"].(map[string]interface{}); ok {
				tool.InputSchema.Properties = props
			}
			if required, ok := t.Parameters["required"].([]string); ok {
				tool.InputSchema.Required = required
			}
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

type chunkStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	// content block index -> tool call ordinal
	toolIndex map[int64]int
}

func (s *chunkStream) Recv() (*contract.Chunk, error) {
	for s.stream.Next() {
		if chunk := s.toChunk(s.stream.Current()); chunk != nil {
			return chunk, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return nil, io.EOF
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}

// toChunk maps one SSE event. Events with nothing to report return nil.
func (s *chunkStream) toChunk(ev anthropic.MessageStreamEventUnion) *contract.Chunk {
	switch ev.Type {
	case "message_start":
		return &contract.Chunk{Usage: &contract.Usage{PromptTokens: int(ev.Message.Usage.InputTokens)}}

	case "content_block_start":
		if ev.ContentBlock.Type != "tool_use" {
			return nil
		}
		idx := len(s.toolIndex)
		s.toolIndex[ev.Index] = idx
		return fragmentChunk(contract.ToolCallFragment{Index: idx, ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name})

	case "content_block_delta":
		switch ev.Delta.Type {
		case "text_delta":
			return deltaChunk(&contract.ChunkDelta{Content: ev.Delta.Text}, "")
		case "thinking_delta":
			return deltaChunk(&contract.ChunkDelta{Thinking: ev.Delta.Thinking}, "")
		case "input_json_delta":
			idx, ok := s.toolIndex[ev.Index]
			if !ok {
				return nil
			}
			return fragmentChunk(contract.ToolCallFragment{Index: idx, Arguments: ev.Delta.PartialJSON})
		}
		return nil

	case "message_delta":
		chunk := deltaChunk(&contract.ChunkDelta{}, finishReason(string(ev.Delta.StopReason)))
		if ev.Usage.OutputTokens > 0 {
			chunk.Usage = &contract.Usage{CompletionTokens: int(ev.Usage.OutputTokens)}
		}
		return chunk
	}

	return nil
}

func deltaChunk(delta *contract.ChunkDelta, finish string) *contract.Chunk {
	return &contract.Chunk{Choices: []contract.ChunkChoice{{Delta: delta, FinishReason: finish}}}
}

func fragmentChunk(frag contract.ToolCallFragment) *contract.Chunk {
	return deltaChunk(&contract.ChunkDelta{ToolCalls: []contract.ToolCallFragment{frag}}, "")
}

func finishReason(stop string) string {
	switch stop {
	case "tool_use":
		return "tool_calls"
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "":
		return ""
	default:
		return "stop"
	}
}
