package model

import (
	"context"
	"sync"
	"time"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

type streamer interface {
	Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error)
}

// ProviderAdapter binds a vendor streamer to one registry entry: the exposed
// name, the upstream model, a default max_tokens and the request timeout.
type ProviderAdapter struct {
	provider      streamer
	name          string
	providerType  string
	upstreamModel string
	maxTokens     int
	timeout       time.Duration
}

func (a *ProviderAdapter) Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error) {
	req.Model = a.upstreamModel
	if req.MaxTokens <= 0 {
		req.MaxTokens = a.maxTokens
	}

	if a.timeout <= 0 {
		return a.provider.Stream(ctx, req)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	s, err := a.provider.Stream(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ChunkStream: s, cancel: cancel}, nil
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}

func (a *ProviderAdapter) Health(ctx context.Context) error {
	return nil
}

// cancelOnClose releases the per-request timeout once the stream is closed.
type cancelOnClose struct {
	contract.ChunkStream
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ChunkStream.Close()
	c.once.Do(c.cancel)
	return err
}
