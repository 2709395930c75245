// Package normalize turns raw provider chunk streams into well-formed
// stream events. Malformed chunks are repaired or skipped here and never
// reach the run driver.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/model/contract"
	"github.com/codeer-ai/lybot/internal/stream"

	"github.com/google/uuid"
)

type Strategy int

const (
	// Tolerant skips chunks without choices and choices without a delta.
	Tolerant Strategy = iota
	// Strict rejects them, except choice-less chunks that carry usage.
	Strict
)

func (s Strategy) String() string {
	if s == Strict {
		return "strict"
	}
	return "tolerant"
}

func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tolerant":
		return Tolerant, nil
	case "strict":
		return Strict, nil
	default:
		return Tolerant, lyErrors.InvalidInput(fmt.Sprintf("unknown chunk strategy %q", name))
	}
}

// Summary describes a fully consumed stream.
type Summary struct {
	Usage        contract.Usage
	UsageSeen    bool
	FinishReason string
	Chunks       int
	Skipped      int
}

type Normalizer struct {
	strategy Strategy
	nonce    func() string
}

func New(strategy Strategy) *Normalizer {
	return &Normalizer{strategy: strategy, nonce: newNonce}
}

func (n *Normalizer) Strategy() Strategy {
	return n.strategy
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Normalize drains src, calling emit for every event in order. It does not
// close src.
func (n *Normalizer) Normalize(ctx context.Context, src contract.ChunkStream, emit func(stream.Event) error) (Summary, error) {
	st := &state{
		strategy: n.strategy,
		nonce:    n.nonce(),
		open:     make(map[callKey]string),
		calls:    make(map[string]*callState),
		resent:   make(map[callKey]string),
		emit:     emit,
	}

	for {
		if err := ctx.Err(); err != nil {
			return st.summary, err
		}

		chunk, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return st.summary, ctxErr
			}
			return st.summary, lyErrors.Wrap(err, "upstream stream failed")
		}

		if err := st.consume(chunk); err != nil {
			return st.summary, err
		}
	}

	if !st.usable {
		return st.summary, lyErrors.UnexpectedUpstream(fmt.Sprintf("stream ended after %d chunks with no content, tool call or usage", st.summary.Chunks))
	}
	return st.summary, nil
}

// callKey locates a streamed tool call: fragment indexes are only unique
// within one choice.
type callKey struct {
	choice int
	index  int
}

type callState struct {
	key  callKey
	name string
}

type state struct {
	strategy Strategy
	nonce    string
	// correlation id of the call currently open at each key
	open map[callKey]string
	// every call opened in this stream, by correlation id
	calls map[string]*callState
	// keys whose id-less fragments belong to a resent call and are dropped
	resent  map[callKey]string
	emit    func(stream.Event) error
	usable  bool
	summary Summary
}

func (s *state) consume(chunk *contract.Chunk) error {
	s.summary.Chunks++
	if chunk == nil {
		return s.skip("nil chunk")
	}

	if chunk.Usage != nil {
		s.summary.Usage = s.summary.Usage.Add(*chunk.Usage)
		s.summary.UsageSeen = true
		s.usable = true
	}

	if len(chunk.Choices) == 0 {
		if chunk.Usage != nil {
			return nil
		}
		return s.skip("chunk without choices")
	}

	for _, choice := range chunk.Choices {
		if err := s.consumeChoice(choice); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) consumeChoice(choice contract.ChunkChoice) error {
	if choice.Delta == nil && choice.FinishReason == "" {
		return s.skip("choice without delta")
	}

	hasContent := false
	if d := choice.Delta; d != nil {
		if d.Thinking != "" {
			if err := s.emit(stream.ThinkingDelta(d.Thinking)); err != nil {
				return err
			}
		}
		if d.Content != "" {
			hasContent = true
			s.usable = true
			if err := s.emit(stream.TextDelta(d.Content)); err != nil {
				return err
			}
		}
		for _, frag := range d.ToolCalls {
			hasContent = true
			s.usable = true
			if err := s.fragment(choice.Index, frag); err != nil {
				return err
			}
		}
	}

	if choice.FinishReason != "" {
		s.summary.FinishReason = choice.FinishReason
		if !hasContent {
			return s.emit(stream.TextDelta(""))
		}
	}
	return nil
}

// fragment routes one tool-call fragment. A fragment carrying an id that
// was already opened elsewhere, or that re-announces the name of a named
// call, is a vendor resend: it and the id-less fragments following it at the
// same key are dropped so the original call's arguments stay intact.
func (s *state) fragment(choice int, frag contract.ToolCallFragment) error {
	key := callKey{choice: choice, index: frag.Index}

	if frag.ID != "" {
		if call, known := s.calls[frag.ID]; known {
			if call.key != key || (frag.Name != "" && call.name != "") {
				s.resent[key] = frag.ID
				slog.Debug("Dropping resent tool call fragment", "tool_call_id", frag.ID, "choice", choice, "index", frag.Index)
				return nil
			}
			delete(s.resent, key)
			return s.extend(frag.ID, call, frag)
		}
		delete(s.resent, key)
		return s.openCall(key, frag.ID, frag)
	}

	if id, dropping := s.resent[key]; dropping {
		slog.Debug("Dropping resent tool call fragment", "tool_call_id", id, "choice", choice, "index", frag.Index)
		return nil
	}
	id, open := s.open[key]
	if !open {
		return s.openCall(key, s.syntheticID(key), frag)
	}
	return s.extend(id, s.calls[id], frag)
}

func (s *state) syntheticID(key callKey) string {
	if key.choice == 0 {
		return fmt.Sprintf("call_%s_%d", s.nonce, key.index)
	}
	return fmt.Sprintf("call_%s_%d_%d", s.nonce, key.choice, key.index)
}

func (s *state) openCall(key callKey, id string, frag contract.ToolCallFragment) error {
	s.open[key] = id
	s.calls[id] = &callState{key: key, name: frag.Name}
	if err := s.emit(stream.ToolCallStart(id, frag.Name)); err != nil {
		return err
	}
	return s.arguments(id, frag)
}

// extend continues an open call. A name arriving after the call was opened
// is announced with a second ToolCallStart for the same id.
func (s *state) extend(id string, call *callState, frag contract.ToolCallFragment) error {
	if frag.Name != "" && call.name == "" {
		call.name = frag.Name
		if err := s.emit(stream.ToolCallStart(id, frag.Name)); err != nil {
			return err
		}
	}
	return s.arguments(id, frag)
}

func (s *state) arguments(id string, frag contract.ToolCallFragment) error {
	if frag.Arguments == "" {
		return nil
	}
	return s.emit(stream.ToolCallDelta(id, frag.Arguments))
}

func (s *state) skip(reason string) error {
	if s.strategy == Strict {
		return lyErrors.UnexpectedUpstream(reason)
	}
	s.summary.Skipped++
	slog.Debug("Skipping malformed chunk", "reason", reason, "chunk", s.summary.Chunks)
	return nil
}
