package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/codeer-ai/lybot/internal/config"
)

// Daemon owns the gateway process lifecycle. Components are initialized and
// started in dependency order, probed on an interval while running and
// stopped in the reverse of that order.
type Daemon struct {
	cfg      *config.Config
	instance string
	timeouts lifecycleTimeouts

	mu          sync.RWMutex
	components  map[string]Component
	registered  []string
	order       []string
	initialized []string
	health      HealthStatus
	created     time.Time
}

type lifecycleTimeouts struct {
	shutdown        time.Duration
	startupShutdown time.Duration
	healthInterval  time.Duration
}

// NewDaemon creates a daemon. instance labels log lines, usually the listen
// address.
func NewDaemon(instance string, cfg *config.Config) (*Daemon, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	return &Daemon{
		instance:   instance,
		cfg:        cfg,
		components: make(map[string]Component),
		health:     StatusStarting,
		created:    time.Now(),
	}, nil
}

// AddComponent registers comp. Registering a second component under the same
// name replaces the first.
func (d *Daemon) AddComponent(comp Component) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := comp.Name()
	if _, exists := d.components[name]; !exists {
		d.registered = append(d.registered, name)
	}
	d.components[name] = comp
	slog.Info("Component registered", "component", name, "total_components", len(d.components))
}

// Start runs the daemon until ctx is cancelled or the process receives
// SIGINT/SIGTERM. The cancellation cause is returned after shutdown.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("LyBot daemon starting...", "instance", d.instance)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.validateConfig(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if err := d.initializeComponents(ctx); err != nil {
		d.rollback(ctx)
		return fmt.Errorf("component initialization failed: %w", err)
	}

	if err := d.startComponents(ctx); err != nil {
		if shutdownErr := d.gracefulShutdown(context.Background(), d.timeouts.startupShutdown); shutdownErr != nil {
			slog.Error("Shutdown after failed startup did not complete", "instance", d.instance, "error", shutdownErr)
		}
		return fmt.Errorf("component startup failed: %w", err)
	}

	d.setHealth(StatusRunning)
	slog.Info("LyBot daemon is running", "instance", d.instance, "components", d.order, "startup", time.Since(d.created))

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		d.monitorHealth(monitorCtx, d.timeouts.healthInterval)
	}()

	<-ctx.Done()
	stopMonitor()
	<-monitorDone

	slog.Info("Shutting down", "instance", d.instance, "reason", ctx.Err())
	d.setHealth(StatusStopping)
	if err := d.gracefulShutdown(context.Background(), d.timeouts.shutdown); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.health
}

// Uptime is the time since the daemon was created.
func (d *Daemon) Uptime() time.Duration {
	return time.Since(d.created)
}

// ComponentHealth probes every registered component. A probe that errors
// without a result is reported as unhealthy with that error.
func (d *Daemon) ComponentHealth() map[string]*ComponentHealth {
	d.mu.RLock()
	components := make([]Component, 0, len(d.components))
	for _, name := range d.registered {
		components = append(components, d.components[name])
	}
	d.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(components))
	for _, comp := range components {
		health, err := comp.Health(context.Background())
		if health == nil {
			health = &ComponentHealth{Name: comp.Name()}
		}
		if err != nil {
			health.Healthy = false
			health.Error = err
		}
		result[comp.Name()] = health
	}
	return result
}

// Component returns the registered component with the given name, or nil.
func (d *Daemon) Component(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.components[name]
}

func (d *Daemon) setHealth(status HealthStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.health = status
}

func (d *Daemon) validateConfig() error {
	if d.cfg.Server.Port < 1 || d.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", d.cfg.Server.Port)
	}
	if len(d.cfg.Models.Registry) == 0 {
		return fmt.Errorf("models.registry must contain at least one model")
	}
	if d.cfg.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	if !slices.Contains(d.cfg.Models.ModelIDs(), d.cfg.Models.Default) {
		return fmt.Errorf("models.default %q is not in models.registry", d.cfg.Models.Default)
	}

	var err error
	if d.timeouts.shutdown, err = config.DurationOrDefault(d.cfg.Daemon.ShutdownTimeout, config.DefaultDaemonShutdownTimeout); err != nil {
		return fmt.Errorf("daemon.shutdown_timeout: %w", err)
	}
	if d.timeouts.startupShutdown, err = config.DurationOrDefault(d.cfg.Daemon.StartupShutdownTimeout, config.DefaultDaemonStartupShutdownTimeout); err != nil {
		return fmt.Errorf("daemon.startup_shutdown_timeout: %w", err)
	}
	if d.timeouts.healthInterval, err = config.DurationOrDefault(d.cfg.Daemon.HealthCheckInterval, config.DefaultDaemonHealthCheckInterval); err != nil {
		return fmt.Errorf("daemon.health_check_interval: %w", err)
	}
	if d.timeouts.healthInterval <= 0 {
		return fmt.Errorf("daemon.health_check_interval must be positive")
	}

	slog.Info("Configuration validated", "instance", d.instance, "port", d.cfg.Server.Port, "default_model", d.cfg.Models.Default)
	return nil
}

func (d *Daemon) initializeComponents(ctx context.Context) error {
	order, err := d.resolveOrder()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.order = order
	d.initialized = d.initialized[:0]
	d.mu.Unlock()

	for _, name := range order {
		comp := d.getComponentByName(name)
		if err := comp.Init(ctx); err != nil {
			slog.Error("Component initialization failed", "component", name, "error", err)
			return fmt.Errorf("component %s init failed: %w", name, err)
		}
		d.mu.Lock()
		d.initialized = append(d.initialized, name)
		d.mu.Unlock()
		slog.Debug("Component initialized", "component", name)
	}

	slog.Info("All components initialized", "order", order)
	return nil
}

func (d *Daemon) startComponents(ctx context.Context) error {
	for _, name := range d.startOrder() {
		comp := d.getComponentByName(name)
		if err := comp.Start(ctx); err != nil {
			slog.Error("Component startup failed", "component", name, "error", err)
			return fmt.Errorf("component %s startup failed: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}
	return nil
}

// startOrder is the resolved dependency order, or registration order when
// the daemon has not been initialized.
func (d *Daemon) startOrder() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) > 0 {
		return slices.Clone(d.order)
	}
	return slices.Clone(d.registered)
}

func (d *Daemon) stopOrder() []string {
	order := d.startOrder()
	slices.Reverse(order)
	return order
}

func (d *Daemon) gracefulShutdown(ctx context.Context, timeout time.Duration) error {
	slog.Info("Graceful shutdown initiated", "instance", d.instance, "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.shutdownComponents(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Graceful shutdown completed", "instance", d.instance)
		return nil
	case <-shutdownCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("shutdown cancelled: %w", ctx.Err())
		}
		slog.Error("Shutdown timeout exceeded", "instance", d.instance, "timeout", timeout)
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

// shutdownComponents stops everything in reverse start order. A failing Stop
// is logged and does not prevent the remaining components from stopping.
func (d *Daemon) shutdownComponents(ctx context.Context) {
	d.stopAll(ctx, d.stopOrder())
}

// rollback stops only the components whose Init succeeded.
func (d *Daemon) rollback(ctx context.Context) {
	d.mu.RLock()
	done := slices.Clone(d.initialized)
	d.mu.RUnlock()

	slices.Reverse(done)
	slog.Warn("Rolling back initialized components", "instance", d.instance, "components", done)
	d.stopAll(ctx, done)
}

func (d *Daemon) stopAll(ctx context.Context, names []string) {
	var errs []error
	for _, name := range names {
		comp := d.getComponentByName(name)
		if comp == nil {
			continue
		}
		if err := comp.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		slog.Debug("Component stopped", "component", name)
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("Some components failed to stop", "instance", d.instance, "error", err)
	}
	d.setHealth(StatusStopped)
}

func (d *Daemon) getComponentByName(name string) Component {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.components[name]
}

// monitorHealth probes components every interval and logs only transitions,
// so a steady state stays quiet.
func (d *Daemon) monitorHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	previous := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.logHealthTransitions(previous)
		}
	}
}

func (d *Daemon) logHealthTransitions(previous map[string]bool) {
	for name, health := range d.ComponentHealth() {
		was, seen := previous[name]
		previous[name] = health.Healthy
		if seen && was == health.Healthy {
			continue
		}
		if health.Healthy {
			if seen {
				slog.Info("Component recovered", "component", name)
			}
			continue
		}
		slog.Warn("Component unhealthy", "component", name, "error", health.Error)
	}
}

// resolveOrder topologically sorts the components so that every component
// follows its dependencies. Ties keep registration order.
func (d *Daemon) resolveOrder() ([]string, error) {
	d.mu.RLock()
	registered := slices.Clone(d.registered)
	components := make(map[string]Component, len(d.components))
	for name, comp := range d.components {
		components[name] = comp
	}
	d.mu.RUnlock()

	const (
		visiting = iota + 1
		visited
	)
	state := make(map[string]int, len(components))
	order := make([]string, 0, len(components))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency: %v", append(path, name))
		}
		state[name] = visiting
		for _, dep := range components[name].Dependencies() {
			if _, ok := components[dep]; !ok {
				return fmt.Errorf("component %s depends on %s which is not registered", name, dep)
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for _, name := range registered {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
