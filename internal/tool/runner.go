package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/logger"
	"github.com/codeer-ai/lybot/internal/model/contract"
)

// Runner resolves, validates and executes tools by name.
type Runner struct {
	registry *Registry
}

func NewRunner(registry *Registry) *Runner {
	return &Runner{registry: registry}
}

func (r *Runner) Definitions() []contract.ToolDef {
	if r == nil || r.registry == nil {
		return nil
	}
	return r.registry.Definitions()
}

func (r *Runner) GetDescriptors() []ToolDescriptor {
	if r == nil || r.registry == nil {
		return nil
	}
	return r.registry.GetDescriptors()
}

// Invoke runs the named tool with JSON-encoded arguments and returns its
// textual result. Empty arguments are treated as an empty object.
func (r *Runner) Invoke(ctx context.Context, name string, args string) (string, error) {
	t, ok := r.registry.Get(name)
	if !ok {
		return "", lyErrors.NotFound(fmt.Sprintf("tool %s not found", NormalizeToolName(name)))
	}
	resolved := NormalizeToolName(t.Name())

	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	input := json.RawMessage(args)

	if err := ValidateInput(t.Parameters(), input); err != nil {
		slog.Warn("Tool input validation failed", "tool", resolved, "error", err)
		return "", lyErrors.WrapWithCategory(err, "invalid input", lyErrors.ErrInvalidInput)
	}

	start := time.Now()
	slog.Info("Executing tool", append([]any{"tool", resolved}, logger.Attrs(ctx)...)...)

	result, err := t.Execute(ctx, input)

	duration := time.Since(start)
	if err != nil {
		slog.Error("Tool execution failed", append([]any{"tool", resolved, "error", err, "duration", duration}, logger.Attrs(ctx)...)...)
		return "", err
	}

	slog.Info("Tool execution success", append([]any{"tool", resolved, "duration", duration, "bytes", len(result)}, logger.Attrs(ctx)...)...)
	return string(result), nil
}
