package stream

// Phase is the stage of an agent run an event was produced in. A run is zero
// or more ModelRequest/CallTools alternations followed by exactly one End.
type Phase int

const (
	PhaseModelRequest Phase = iota + 1
	PhaseCallTools
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseModelRequest:
		return "model_request"
	case PhaseCallTools:
		return "call_tools"
	case PhaseEnd:
		return "end"
	default:
		return "unknown"
	}
}

type PhaseEvent struct {
	Phase Phase
	Event Event
}

// Emitter receives phase-tagged events in order. Returning an error aborts the run.
type Emitter func(PhaseEvent) error

// Discard is an Emitter that drops every event.
func Discard(PhaseEvent) error { return nil }
