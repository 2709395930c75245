package agent

import (
	"strings"

	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/stream"
)

// turn assembles one model response from normalized events.
type turn struct {
	text  strings.Builder
	order []string
	calls map[string]*contract.ToolCall
	args  map[string]*strings.Builder
}

func newTurn() *turn {
	return &turn{
		calls: make(map[string]*contract.ToolCall),
		args:  make(map[string]*strings.Builder),
	}
}

func (t *turn) observe(ev stream.Event) {
	switch ev.Kind {
	case stream.KindTextDelta:
		t.text.WriteString(ev.Text)
	case stream.KindToolCallStart:
		if _, ok := t.calls[ev.ToolCallID]; ok {
			if ev.ToolName != "" {
				t.calls[ev.ToolCallID].Name = ev.ToolName
			}
			return
		}
		t.order = append(t.order, ev.ToolCallID)
		t.calls[ev.ToolCallID] = &contract.ToolCall{ID: ev.ToolCallID, Name: ev.ToolName}
		t.args[ev.ToolCallID] = &strings.Builder{}
	case stream.KindToolCallDelta:
		b, ok := t.args[ev.ToolCallID]
		if !ok {
			return
		}
		b.WriteString(ev.Text)
	}
}

func (t *turn) output() string {
	return t.text.String()
}

// toolCalls returns the assembled calls in the order they were opened.
// Calls without arguments get an empty object.
func (t *turn) toolCalls() []contract.ToolCall {
	if len(t.order) == 0 {
		return nil
	}
	out := make([]contract.ToolCall, 0, len(t.order))
	for _, id := range t.order {
		call := *t.calls[id]
		call.Arguments = strings.TrimSpace(t.args[id].String())
		if call.Arguments == "" {
			call.Arguments = "{}"
		}
		out = append(out, call)
	}
	return out
}

func (t *turn) message() contract.Message {
	return contract.Message{
		Role:      contract.RoleAssistant,
		Content:   t.output(),
		ToolCalls: t.toolCalls(),
	}
}
