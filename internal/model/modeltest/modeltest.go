// Package modeltest provides scripted provider streams for tests.
package modeltest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

// SliceStream replays a fixed list of chunks, then returns Err (or io.EOF).
type SliceStream struct {
	Chunks []*contract.Chunk
	Err    error

	mu     sync.Mutex
	pos    int
	closed bool
}

func NewSliceStream(chunks ...*contract.Chunk) *SliceStream {
	return &SliceStream{Chunks: chunks}
}

func (s *SliceStream) Recv() (*contract.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("recv on closed stream")
	}
	if s.pos < len(s.Chunks) {
		c := s.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Turn is one scripted model response.
type Turn struct {
	Chunks []*contract.Chunk
	// StreamErr is returned by Recv after the chunks are exhausted.
	StreamErr error
	// OpenErr fails the Stream call itself.
	OpenErr error
	// Block makes Recv wait for context cancellation before returning.
	Block bool
}

// ScriptedProvider plays back one Turn per Stream call and records every
// request it receives. It satisfies both the provider and the router shape.
type ScriptedProvider struct {
	ProviderName string

	mu       sync.Mutex
	turns    []Turn
	requests []contract.Request
	streams  []*SliceStream
}

func NewScriptedProvider(turns ...Turn) *ScriptedProvider {
	return &ScriptedProvider{ProviderName: "scripted", turns: turns}
}

func (p *ScriptedProvider) Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = contract.CloneMessages(req.Messages)
	p.requests = append(p.requests, req)

	if len(p.turns) == 0 {
		return nil, fmt.Errorf("scripted provider: no turn left for request %d", len(p.requests))
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]

	if turn.OpenErr != nil {
		return nil, turn.OpenErr
	}

	s := &SliceStream{Chunks: turn.Chunks, Err: turn.StreamErr}
	p.streams = append(p.streams, s)
	if turn.Block {
		return &blockingStream{ctx: ctx, SliceStream: s}, nil
	}
	return s, nil
}

func (p *ScriptedProvider) Route(ctx context.Context, model string, req contract.Request) (contract.ChunkStream, error) {
	req.Model = model
	return p.Stream(ctx, req)
}

func (p *ScriptedProvider) ListModels() []string { return []string{p.Name()} }

func (p *ScriptedProvider) Name() string {
	if p.ProviderName == "" {
		return "scripted"
	}
	return p.ProviderName
}

func (p *ScriptedProvider) Type() string { return "scripted" }

func (p *ScriptedProvider) Health(ctx context.Context) error { return nil }

// Requests returns copies of the requests seen so far.
func (p *ScriptedProvider) Requests() []contract.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]contract.Request(nil), p.requests...)
}

// AllClosed reports whether every stream handed out has been closed.
func (p *ScriptedProvider) AllClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.streams {
		if !s.Closed() {
			return false
		}
	}
	return true
}

type blockingStream struct {
	ctx context.Context
	*SliceStream
}

func (b *blockingStream) Recv() (*contract.Chunk, error) {
	<-b.ctx.Done()
	return nil, b.ctx.Err()
}

// Text is a chunk carrying a single content delta.
func Text(s string) *contract.Chunk {
	return &contract.Chunk{Choices: []contract.ChunkChoice{{Delta: &contract.ChunkDelta{Content: s}}}}
}

// Thinking is a chunk carrying a reasoning delta.
func Thinking(s string) *contract.Chunk {
	return &contract.Chunk{Choices: []contract.ChunkChoice{{Delta: &contract.ChunkDelta{Thinking: s}}}}
}

// ToolFragment is a chunk carrying one tool-call fragment.
func ToolFragment(index int, id, name, args string) *contract.Chunk {
	return &contract.Chunk{Choices: []contract.ChunkChoice{{Delta: &contract.ChunkDelta{
		ToolCalls: []contract.ToolCallFragment{{Index: index, ID: id, Name: name, Arguments: args}},
	}}}}
}

// Finish is a terminal chunk with an empty delta.
func Finish(reason string) *contract.Chunk {
	return &contract.Chunk{Choices: []contract.ChunkChoice{{Delta: &contract.ChunkDelta{}, FinishReason: reason}}}
}

// UsageOnly is a choice-less chunk that only reports token usage.
func UsageOnly(prompt, completion int) *contract.Chunk {
	return &contract.Chunk{Usage: &contract.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}}
}

// Empty is a chunk with no choices and no usage.
func Empty() *contract.Chunk {
	return &contract.Chunk{}
}
