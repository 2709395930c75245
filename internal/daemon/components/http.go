package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/codeer-ai/lybot/internal/agent"
	"github.com/codeer-ai/lybot/internal/concurrency"
	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/daemon"
	"github.com/codeer-ai/lybot/internal/gateway"
)

// Version is reported by the service info endpoint; set by the CLI.
var Version = "dev"

// HTTPServerComponent serves the OpenAI-compatible gateway.
type HTTPServerComponent struct {
	daemon        *daemon.Daemon
	cfg           *config.Config
	modelsComp    *ModelsComponent
	toolsComp     *ToolsComponent
	sessionsComp  *SessionsComponent
	analyticsComp *AnalyticsComponent

	server      *http.Server
	listener    net.Listener
	shutdownTTL time.Duration
	initialized bool
	started     bool
	mu          sync.RWMutex
	startTime   time.Time
}

func NewHTTPServerComponent(d *daemon.Daemon, cfg *config.Config, models *ModelsComponent, tools *ToolsComponent, sessions *SessionsComponent, analytics *AnalyticsComponent) *HTTPServerComponent {
	return &HTTPServerComponent{
		daemon:        d,
		cfg:           cfg,
		modelsComp:    models,
		toolsComp:     tools,
		sessionsComp:  sessions,
		analyticsComp: analytics,
	}
}

func (h *HTTPServerComponent) Name() string {
	return "HTTPServer"
}

func (h *HTTPServerComponent) Dependencies() []string {
	return []string{"Models", "Tools", "Sessions", "Analytics"}
}

func (h *HTTPServerComponent) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg == nil {
		return fmt.Errorf("config not provided")
	}
	if h.modelsComp == nil || h.toolsComp == nil || h.sessionsComp == nil || h.analyticsComp == nil {
		return fmt.Errorf("required component dependencies not provided")
	}
	router := h.modelsComp.GetRouter()
	runner := h.toolsComp.GetRunner()
	store := h.sessionsComp.GetStore()
	sink := h.analyticsComp.GetSink()
	if router == nil || runner == nil || store == nil || sink == nil {
		return fmt.Errorf("required dependencies not initialized")
	}

	srvCfg := h.cfg.Server
	readTimeout, err := config.DurationOrDefault(srvCfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(srvCfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(srvCfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(srvCfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return fmt.Errorf("parse server shutdown timeout: %w", err)
	}
	lockTimeout, err := config.DurationOrDefault(h.cfg.Gateway.SessionLockTimeout, config.DefaultGatewaySessionLockTimeout)
	if err != nil {
		return fmt.Errorf("parse gateway session lock timeout: %w", err)
	}

	agentOpts, err := agent.OptionsFromConfig(h.cfg.Agent)
	if err != nil {
		return fmt.Errorf("invalid agent config: %w", err)
	}
	instructions, err := h.cfg.Agent.ResolveInstructions()
	if err != nil {
		return fmt.Errorf("resolve agent instructions: %w", err)
	}

	gw := gateway.New(gateway.Options{
		Runner:             agent.NewDriver(router, runner, agentOpts),
		Store:              store,
		Analytics:          sink,
		Models:             h.cfg.Models.ModelIDs(),
		DefaultModel:       h.cfg.Models.Default,
		OwnedBy:            h.cfg.Models.OwnedBy,
		Instructions:       instructions,
		EmitToolResults:    h.cfg.Gateway.EmitToolResults,
		SessionLockTimeout: lockTimeout,
		MaxBodyBytes:       srvCfg.MaxBodyBytes,
		CORSOrigins:        srvCfg.CORSOrigins,
		Version:            Version,
		Health:             h.componentStatus,
	})

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", srvCfg.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	h.shutdownTTL = shutdownTimeout

	h.initialized = true
	slog.Info("HTTPServer initialized", "component", h.Name(), "port", srvCfg.Port, "models", h.cfg.Models.ModelIDs())
	return nil
}

// Start binds the listener synchronously so a busy port fails startup.
func (h *HTTPServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return fmt.Errorf("HTTPServer not initialized")
	}

	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	server := h.server
	concurrency.SafeGo(func() {
		slog.Info("HTTP server listening", "component", h.Name(), "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "component", h.Name(), "error", err)
		}
	}, nil)

	h.started = true
	h.startTime = time.Now()
	slog.Info("HTTPServer started", "component", h.Name())
	return nil
}

func (h *HTTPServerComponent) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		slog.Info("HTTPServer not started, skipping stop", "component", h.Name())
		return nil
	}

	slog.Info("Stopping HTTPServer...", "component", h.Name())
	shutdownCtx, cancel := context.WithTimeout(ctx, h.shutdownTTL)
	defer cancel()

	if err := h.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTPServer shutdown error", "component", h.Name(), "error", err)
		return err
	}

	h.started = false
	slog.Info("HTTPServer stopped", "component", h.Name(), "uptime", time.Since(h.startTime))
	return nil
}

func (h *HTTPServerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.initialized {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   errNotInitialized,
		}, nil
	}

	if !h.started {
		return &daemon.ComponentHealth{
			Name:    h.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    h.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

// Addr is the bound listen address once started.
func (h *HTTPServerComponent) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// componentStatus feeds GET /health. The server itself is omitted since it
// is answering.
func (h *HTTPServerComponent) componentStatus(ctx context.Context) map[string]string {
	if h.daemon == nil {
		return nil
	}

	healths := h.daemon.ComponentHealth()
	out := make(map[string]string, len(healths))
	for name, ch := range healths {
		if name == h.Name() {
			continue
		}
		out[name] = ch.Summary()
	}
	return out
}
