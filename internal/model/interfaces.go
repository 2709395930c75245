package model

import (
	"context"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

// ModelRouter opens completion streams by exposed model id. The caller owns
// the returned stream and must Close it.
type ModelRouter interface {
	Route(ctx context.Context, model string, req contract.Request) (contract.ChunkStream, error)
	// ListModels returns the exposed model ids in registry order.
	ListModels() []string
	Health(ctx context.Context) error
}

// Provider streams raw chunks from one upstream. Chunks are passed through
// unrepaired; the normalizer deals with malformed output.
type Provider interface {
	Stream(ctx context.Context, req contract.Request) (contract.ChunkStream, error)
	Name() string
	Type() string
	Health(ctx context.Context) error
}
