package gateway

import (
	"fmt"
	"log/slog"

	"github.com/codeer-ai/lybot/internal/api"
	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/stream"
)

type TranslatorOptions struct {
	ID              string
	Created         int64
	Model           string
	EmitToolResults bool
	IncludeUsage    bool
	// LogAttrs are appended to every log line, usually logger.Attrs(ctx).
	LogAttrs []any
}

// Translator maps one run's phase-tagged events to chat.completion.chunk
// payloads. It writes exactly one role chunk, at most one terminal chunk and
// exactly one [DONE]; nothing is written after [DONE].
type Translator struct {
	sink    chunkSink
	opts    TranslatorOptions
	started bool
	done    bool
	// tool call id -> position in the run's tool_calls
	toolCalls map[string]int
}

func NewTranslator(sink chunkSink, opts TranslatorOptions) *Translator {
	return &Translator{
		sink:      sink,
		opts:      opts,
		toolCalls: make(map[string]int),
	}
}

// Start announces the assistant role. Translate calls it if the caller did not.
func (t *Translator) Start() error {
	if t.started || t.done {
		return nil
	}
	t.started = true
	return t.writeDelta(api.ChunkDelta{Role: "assistant"}, nil)
}

// Translate is a stream.Emitter.
func (t *Translator) Translate(ev stream.PhaseEvent) error {
	if t.done {
		return nil
	}
	if err := t.Start(); err != nil {
		return err
	}

	switch ev.Phase {
	case stream.PhaseModelRequest, stream.PhaseCallTools:
		return t.translateEvent(ev.Event)
	case stream.PhaseEnd:
		return t.finish(ev.Event)
	default:
		return fmt.Errorf("unknown run phase %s", ev.Phase)
	}
}

func (t *Translator) translateEvent(ev stream.Event) error {
	switch ev.Kind {
	case stream.KindTextDelta:
		if ev.Text == "" {
			return nil
		}
		return t.writeDelta(api.ChunkDelta{Content: ev.Text}, nil)

	case stream.KindThinkingDelta:
		slog.Debug("Model thinking", append([]any{"text", ev.Text}, t.opts.LogAttrs...)...)
		return nil

	case stream.KindToolCallComplete:
		if _, seen := t.toolCalls[ev.ToolCallID]; seen {
			slog.Warn("Duplicate tool call ignored", append([]any{"tool_call_id", ev.ToolCallID, "tool", ev.ToolName}, t.opts.LogAttrs...)...)
			return nil
		}
		index := len(t.toolCalls)
		t.toolCalls[ev.ToolCallID] = index
		return t.writeDelta(api.ChunkDelta{
			ToolCalls: []api.ToolCall{{
				Index: &index,
				ID:    ev.ToolCallID,
				Type:  api.ToolTypeFunction,
				Function: api.FunctionCall{
					Name:      ev.ToolName,
					Arguments: ev.Arguments,
				},
			}},
		}, nil)

	case stream.KindToolResult:
		if !t.opts.EmitToolResults {
			return nil
		}
		return t.writeDelta(api.ChunkDelta{
			Role:       contract.RoleTool,
			Content:    ev.Text,
			ToolCallID: ev.ToolCallID,
		}, nil)
	}
	return nil
}

// finish writes the terminal chunk, the optional usage chunk and [DONE].
func (t *Translator) finish(ev stream.Event) error {
	reason := api.FinishReasonStop
	if len(t.toolCalls) > 0 {
		reason = api.FinishReasonToolCalls
	}
	if err := t.writeDelta(api.ChunkDelta{}, &reason); err != nil {
		return err
	}

	if t.opts.IncludeUsage && ev.Kind == stream.KindUsageTotals {
		usage := toWireUsage(ev.Usage)
		if err := t.sink.WriteChunk(api.ChatCompletionChunk{
			ID:      t.opts.ID,
			Object:  api.ObjectChatCompletionChunk,
			Created: t.opts.Created,
			Model:   t.opts.Model,
			Choices: []api.ChunkChoice{},
			Usage:   &usage,
		}); err != nil {
			return err
		}
	}
	return t.writeDone()
}

// Fail reports err in-band and closes the stream. It is a no-op once [DONE]
// has been written.
func (t *Translator) Fail(err error) error {
	if t.done {
		return nil
	}
	t.done = true
	if werr := t.sink.WriteChunk(api.ErrorResponse{Error: api.ErrorBody{
		Message: err.Error(),
		Type:    lyErrors.TypeInternal,
	}}); werr != nil {
		return werr
	}
	return t.sink.WriteDone()
}

// Done reports whether [DONE] has been written.
func (t *Translator) Done() bool {
	return t.done
}

// ToolCallCount is the number of distinct tool calls sent to the client.
func (t *Translator) ToolCallCount() int {
	return len(t.toolCalls)
}

func (t *Translator) writeDelta(delta api.ChunkDelta, finishReason *string) error {
	return t.sink.WriteChunk(api.ChatCompletionChunk{
		ID:      t.opts.ID,
		Object:  api.ObjectChatCompletionChunk,
		Created: t.opts.Created,
		Model:   t.opts.Model,
		Choices: []api.ChunkChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	})
}

func (t *Translator) writeDone() error {
	t.done = true
	return t.sink.WriteDone()
}

func toWireUsage(u contract.Usage) api.Usage {
	return api.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
