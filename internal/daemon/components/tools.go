package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/daemon"
	"github.com/codeer-ai/lybot/internal/tool"
	_ "github.com/codeer-ai/lybot/internal/tool/builtin"
)

// ToolsComponent instantiates the enabled built-in tools and exposes them
// through a validating runner.
type ToolsComponent struct {
	cfg      config.ToolsConfig
	registry *tool.Registry
	runner   *tool.Runner
	mu       sync.RWMutex
}

func NewToolsComponent(cfg config.ToolsConfig) *ToolsComponent {
	return &ToolsComponent{cfg: cfg}
}

func (t *ToolsComponent) Name() string {
	return "Tools"
}

func (t *ToolsComponent) Dependencies() []string {
	return []string{}
}

func (t *ToolsComponent) Init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	timeout, err := config.DurationOrDefault(t.cfg.LYAPI.Timeout, config.DefaultLYAPITimeout)
	if err != nil {
		return fmt.Errorf("parse lyapi timeout: %w", err)
	}

	tools, err := tool.InstantiateBuiltins(tool.BuiltinOptions{
		LYAPIBaseURL: t.cfg.LYAPI.BaseURL,
		LYAPITimeout: timeout,
		Term:         t.cfg.LYAPI.Term,
		PageLimit:    t.cfg.LYAPI.PageLimit,
	}, t.cfg.Enabled)
	if err != nil {
		return fmt.Errorf("failed to instantiate tools: %w", err)
	}

	registry := tool.NewRegistry()
	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		registry.Register(tl)
		names = append(names, tl.Name())
	}
	t.registry = registry
	t.runner = tool.NewRunner(registry)

	slog.Info("Tools initialized", "component", t.Name(), "tools", names)
	return nil
}

func (t *ToolsComponent) Start(ctx context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.runner == nil {
		return fmt.Errorf("tools not initialized")
	}
	return nil
}

func (t *ToolsComponent) Stop(ctx context.Context) error {
	return nil
}

func (t *ToolsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.registry == nil {
		return &daemon.ComponentHealth{Name: t.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	return &daemon.ComponentHealth{Name: t.Name(), Healthy: true}, nil
}

func (t *ToolsComponent) GetRunner() *tool.Runner {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runner
}
