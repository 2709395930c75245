// Package tokens estimates token usage when a provider reports none.
package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

const fallbackEncoding = "o200k_base"

// Counter counts tokens with a tiktoken encoding.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New accepts either a model name or an encoding name and falls back to
// o200k_base when neither is known.
func New(encoding string) (*Counter, error) {
	name := strings.TrimSpace(encoding)
	if name == "" {
		name = fallbackEncoding
	}

	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
	}
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages counts message content plus tool call names and arguments.
func (c *Counter) CountMessages(msgs []contract.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.Count(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.Count(tc.Name) + c.Count(tc.Arguments)
		}
	}
	return total
}

// Estimate approximates the usage of one run: the prompt side is the
// instructions and input history, the completion side is what the run added.
func (c *Counter) Estimate(instructions string, input []contract.Message, output []contract.Message) contract.Usage {
	prompt := c.Count(instructions) + c.CountMessages(input)
	completion := c.CountMessages(output)
	return contract.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
