// Package stream defines the provider-independent event vocabulary shared by
// the normalizer, the run driver and the wire translator.
package stream

import (
	"fmt"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

type Kind int

const (
	KindTextDelta Kind = iota + 1
	KindThinkingDelta
	KindToolCallStart
	KindToolCallDelta
	KindToolCallComplete
	KindToolResult
	KindUsageTotals
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindThinkingDelta:
		return "thinking_delta"
	case KindToolCallStart:
		return "tool_call_start"
	case KindToolCallDelta:
		return "tool_call_delta"
	case KindToolCallComplete:
		return "tool_call_complete"
	case KindToolResult:
		return "tool_result"
	case KindUsageTotals:
		return "usage_totals"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a tagged union; which fields are meaningful depends on Kind.
//
//	TextDelta, ThinkingDelta: Text
//	ToolCallStart:            ToolCallID, ToolName
//	ToolCallDelta:            ToolCallID, Text (argument fragment)
//	ToolCallComplete:         ToolCallID, ToolName, Arguments
//	ToolResult:               ToolCallID, ToolName, Text (result content)
//	UsageTotals:              Usage
type Event struct {
	Kind       Kind
	Text       string
	ToolCallID string
	ToolName   string
	Arguments  string
	Usage      contract.Usage
}

func TextDelta(text string) Event {
	return Event{Kind: KindTextDelta, Text: text}
}

func ThinkingDelta(text string) Event {
	return Event{Kind: KindThinkingDelta, Text: text}
}

func ToolCallStart(id, name string) Event {
	return Event{Kind: KindToolCallStart, ToolCallID: id, ToolName: name}
}

func ToolCallDelta(id, fragment string) Event {
	return Event{Kind: KindToolCallDelta, ToolCallID: id, Text: fragment}
}

func ToolCallComplete(id, name, args string) Event {
	return Event{Kind: KindToolCallComplete, ToolCallID: id, ToolName: name, Arguments: args}
}

func ToolResult(id, name, content string) Event {
	return Event{Kind: KindToolResult, ToolCallID: id, ToolName: name, Text: content}
}

func UsageTotals(usage contract.Usage) Event {
	return Event{Kind: KindUsageTotals, Usage: usage}
}

// Validate reports whether the fields required by the event kind are set.
func (e Event) Validate() error {
	switch e.Kind {
	case KindTextDelta, KindThinkingDelta:
		return nil
	case KindToolCallStart, KindToolCallDelta, KindToolResult:
		if e.ToolCallID == "" {
			return fmt.Errorf("%s without tool call id", e.Kind)
		}
		return nil
	case KindToolCallComplete:
		if e.ToolCallID == "" || e.ToolName == "" {
			return fmt.Errorf("%s requires tool call id and name", e.Kind)
		}
		return nil
	case KindUsageTotals:
		return nil
	default:
		return fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
}
