package agent

import (
	"context"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

// Router opens a provider stream for an exposed model id.
type Router interface {
	Route(ctx context.Context, model string, req contract.Request) (contract.ChunkStream, error)
}

// ToolInvoker lists and executes tools. A returned error is the tool's own
// failure and is reported back to the model.
type ToolInvoker interface {
	Definitions() []contract.ToolDef
	Invoke(ctx context.Context, name string, args string) (string, error)
}

// CommitFunc persists the messages a run produced. It is called once, after
// the last model turn and before usage is reported.
type CommitFunc func(ctx context.Context, msgs []contract.Message) error

type RunRequest struct {
	Model        string
	Instructions string
	History      []contract.Message
	Prompt       string
	Temperature  *float64
	TopP         *float64
	MaxTokens    int
	Stop         []string
	Commit       CommitFunc
}

type Result struct {
	// NewMessages is the user prompt followed by every assistant and tool
	// message of the run.
	NewMessages []contract.Message
	Output      string
	ToolCalls   []contract.ToolCall
	// Usage is contract.UnknownUsage when neither the provider nor the
	// estimator produced counts.
	Usage contract.Usage
	Turns int
}
