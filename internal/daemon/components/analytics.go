package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeer-ai/lybot/internal/analytics"
	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/daemon"
)

var errNotInitialized = errors.New("not initialized")

// AnalyticsComponent owns the usage event sink and flushes it on stop.
type AnalyticsComponent struct {
	cfg  config.AnalyticsConfig
	sink analytics.Sink
	mu   sync.RWMutex
}

func NewAnalyticsComponent(cfg config.AnalyticsConfig) *AnalyticsComponent {
	return &AnalyticsComponent{cfg: cfg}
}

func (a *AnalyticsComponent) Name() string {
	return "Analytics"
}

func (a *AnalyticsComponent) Dependencies() []string {
	return []string{}
}

func (a *AnalyticsComponent) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sink, err := analytics.New(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to create analytics sink: %w", err)
	}
	a.sink = sink
	return nil
}

func (a *AnalyticsComponent) Start(ctx context.Context) error {
	return nil
}

func (a *AnalyticsComponent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink == nil {
		return nil
	}
	if err := a.sink.Close(); err != nil {
		slog.Warn("Failed to flush analytics", "component", a.Name(), "error", err)
		return err
	}
	slog.Info("Analytics stopped", "component", a.Name())
	return nil
}

func (a *AnalyticsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.sink == nil {
		return &daemon.ComponentHealth{Name: a.Name(), Healthy: false, Error: errNotInitialized}, nil
	}
	return &daemon.ComponentHealth{Name: a.Name(), Healthy: true}, nil
}

func (a *AnalyticsComponent) GetSink() analytics.Sink {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sink
}
