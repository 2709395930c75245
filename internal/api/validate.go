package api

import (
	"fmt"
	"strings"

	lyErrors "github.com/codeer-ai/lybot/internal/errors"
)

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

// Validate checks required fields and numeric ranges. It reports the first
// violation as a schema error.
func (r *ChatCompletionRequest) Validate() error {
	if r.Messages == nil {
		return lyErrors.Schema("messages is required")
	}

	for i, m := range r.Messages {
		switch m.Role {
		case roleSystem, roleUser, roleAssistant:
		case roleTool:
			if m.ToolCallID == "" {
				return lyErrors.Schema(fmt.Sprintf("messages[%d]: tool message requires tool_call_id", i))
			}
		case "":
			return lyErrors.Schema(fmt.Sprintf("messages[%d]: role is required", i))
		default:
			return lyErrors.Schema(fmt.Sprintf("messages[%d]: unsupported role %q", i, m.Role))
		}
	}

	if err := inRange("temperature", r.Temperature, 0, 2); err != nil {
		return err
	}
	if err := inRange("top_p", r.TopP, 0, 1); err != nil {
		return err
	}
	if err := inRange("presence_penalty", r.PresencePenalty, -2, 2); err != nil {
		return err
	}
	if err := inRange("frequency_penalty", r.FrequencyPenalty, -2, 2); err != nil {
		return err
	}
	if r.N != nil && *r.N < 1 {
		return lyErrors.Schema("n must be at least 1")
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return lyErrors.Schema("max_tokens must be at least 1")
	}

	return nil
}

func inRange(field string, v *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return lyErrors.Schema(fmt.Sprintf("%s must be between %g and %g", field, lo, hi))
	}
	return nil
}

// LastUserPrompt returns the content of the last user message. A last user
// message without text (empty, or image parts only) is a schema error.
func (r *ChatCompletionRequest) LastUserPrompt() (string, error) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role != roleUser {
			continue
		}
		text := r.Messages[i].Content.Text
		if strings.TrimSpace(text) == "" {
			return "", lyErrors.Schema("Last user message has no text content")
		}
		return text, nil
	}
	return "", lyErrors.Schema("No user message found")
}

// IncludeUsage reports whether the client asked for a trailing usage chunk.
func (r *ChatCompletionRequest) IncludeUsage() bool {
	return r.Stream && r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}
