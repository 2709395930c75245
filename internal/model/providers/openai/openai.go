package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codeer-ai/lybot/internal/model/contract"

	"github.com/sashabaranov/go-openai"
)

// Provider streams chat completions from any OpenAI-compatible endpoint.
type Provider struct {
	client *openai.Client
}

func New(apiKey, baseURL string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &Provider{client: openai.NewClientWithConfig(cfg)}
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error) {
	chatReq := buildRequest(req)

	s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	return &chunkStream{stream: s}, nil
}

func buildRequest(req contract.Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      buildMessages(req.Instructions, req.Messages),
		Tools:         buildTools(req.Tools),
		MaxTokens:     req.MaxTokens,
		Stop:          req.Stop,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	return chatReq
}

func buildMessages(instructions string, in []contract.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(in)+1)
	if instructions != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instructions})
	}

	for _, m := range in {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == contract.RoleTool {
			msg.Name = m.Name
		}

		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		messages = append(messages, msg)
	}

	return messages
}

func buildTools(defs []contract.ToolDef) []openai.Tool {
	var tools []openai.Tool
	for _, t := range defs {
		params := t.Parameters
		if params == nil {
			params = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

type chunkStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chunkStream) Recv() (*contract.Chunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return toChunk(resp), nil
}

func (s *chunkStream) Close() error {
	return s.stream.Close()
}

func toChunk(resp openai.ChatCompletionStreamResponse) *contract.Chunk {
	chunk := &contract.Chunk{}

	for _, choice := range resp.Choices {
		delta := &contract.ChunkDelta{
			Content:  choice.Delta.Content,
			Thinking: choice.Delta.ReasoningContent,
		}
		for i, tc := range choice.Delta.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, contract.ToolCallFragment{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}

		chunk.Choices = append(chunk.Choices, contract.ChunkChoice{
			Index:        choice.Index,
			Delta:        delta,
			FinishReason: string(choice.FinishReason),
		})
	}

	if resp.Usage != nil {
		chunk.Usage = &contract.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return chunk
}
