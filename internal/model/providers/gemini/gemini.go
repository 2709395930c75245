package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/codeer-ai/lybot/internal/model/contract"

	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// Options tune the Gemini request beyond the provider-neutral fields.
type Options struct {
	IncludeThoughts bool
}

type Provider struct {
	client *genai.Client
	opts   Options
}

func New(apiKey string, opts Options) (*Provider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, opts: opts}, nil
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error) {
	contents, system := buildContents(req.Instructions, req.Messages)
	cfg := p.buildConfig(req, system)

	slog.Debug("Gemini stream", "model", req.Model, "contents", len(contents), "tools", len(req.Tools))

	streamCtx, cancel := context.WithCancel(ctx)
	seq := p.client.Models.GenerateContentStream(streamCtx, req.Model, contents, cfg)
	next, stop := iter.Pull2(seq)

	return &chunkStream{next: next, stop: stop, cancel: cancel}, nil
}

func (p *Provider) buildConfig(req contract.Request, system *genai.Content) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             buildTools(req.Tools),
		StopSequences:     req.Stop,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}
	if p.opts.IncludeThoughts {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return cfg
}

// buildContents converts history into Gemini contents. System messages join
// the system instruction and consecutive tool results share one content.
func buildContents(instructions string, messages []contract.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemParts []*genai.Part

	if instructions != "" {
		systemParts = append(systemParts, &genai.Part{Text: instructions})
	}

	for _, m := range messages {
		switch m.Role {
		case contract.RoleSystem:
			systemParts = append(systemParts, &genai.Part{Text: m.Content})

		case contract.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: map[string]any{"output": m.Content},
			}}
			if last := len(contents) - 1; last >= 0 && isFunctionResponse(contents[last]) {
				contents[last].Parts = append(contents[last].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})

		case contract.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						slog.Warn("Dropping unparsable tool arguments", "tool", tc.Name, "error", err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		default:
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return contents, system
}

func isFunctionResponse(c *genai.Content) bool {
	if c.Role != roleUser || len(c.Parts) == 0 {
		return false
	}
	for _, part := range c.Parts {
		if part.FunctionResponse == nil {
			return false
		}
	}
	return true
}

func buildTools(defs []contract.ToolDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, t := range defs {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			decl.ParametersJsonSchema = t.Parameters
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

type chunkStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc

	calls     int
	lastUsage contract.Usage
}

func (s *chunkStream) Recv() (*contract.Chunk, error) {
	resp, err, ok := s.next()
	if !ok {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("gemini stream: %w", err)
	}
	return s.toChunk(resp), nil
}

func (s *chunkStream) Close() error {
	s.cancel()
	s.stop()
	return nil
}

func (s *chunkStream) toChunk(resp *genai.GenerateContentResponse) *contract.Chunk {
	chunk := &contract.Chunk{}
	if resp == nil {
		return chunk
	}

	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		choice := contract.ChunkChoice{Index: int(cand.Index)}

		if cand.Content != nil {
			delta := &contract.ChunkDelta{}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					args := []byte("{}")
					if part.FunctionCall.Args != nil {
						if b, err := json.Marshal(part.FunctionCall.Args); err == nil {
							args = b
						}
					}
					delta.ToolCalls = append(delta.ToolCalls, contract.ToolCallFragment{
						Index:     s.calls,
						ID:        part.FunctionCall.ID,
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					})
					s.calls++
				case part.Thought:
					delta.Thinking += part.Text
				default:
					delta.Content += part.Text
				}
			}
			choice.Delta = delta
		}

		choice.FinishReason = s.finishReason(cand.FinishReason)
		chunk.Choices = append(chunk.Choices, choice)
	}

	if md := resp.UsageMetadata; md != nil {
		current := contract.Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount + md.ThoughtsTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
		inc := contract.Usage{
			PromptTokens:     current.PromptTokens - s.lastUsage.PromptTokens,
			CompletionTokens: current.CompletionTokens - s.lastUsage.CompletionTokens,
			TotalTokens:      current.TotalTokens - s.lastUsage.TotalTokens,
		}
		s.lastUsage = current
		if !inc.IsZero() {
			chunk.Usage = &inc
		}
	}

	return chunk
}

func (s *chunkStream) finishReason(reason genai.FinishReason) string {
	switch reason {
	case "", genai.FinishReasonUnspecified:
		return ""
	case genai.FinishReasonStop:
		if s.calls > 0 {
			return "tool_calls"
		}
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	default:
		return "content_filter"
	}
}
