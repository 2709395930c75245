package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/codeer-ai/lybot/internal/config"
)

type mockComponent struct {
	name         string
	dependencies []string
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	healthCalled bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

func newMockComponent(name string, dependencies []string) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		healthResult: &ComponentHealth{
			Name:    name,
			Healthy: true,
		},
	}
}

func (m *mockComponent) Name() string {
	return m.name
}

func (m *mockComponent) Dependencies() []string {
	return m.dependencies
}

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	m.healthCalled = true
	return m.healthResult, m.healthError
}

func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Models: config.ModelsConfig{
			Default:  "lybot-gemini",
			Registry: []config.ModelRegistry{{Name: "lybot-gemini", Provider: "gemini", Model: "gemini-2.5-pro"}},
		},
	}
}

func TestNewDaemon(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		cfg      *config.Config
		wantErr  bool
	}{
		{
			name:     "valid daemon",
			instance: "test-instance-" + t.Name(),
			cfg:      &config.Config{},
			wantErr:  false,
		},
		{
			name:     "empty instance",
			instance: "",
			cfg:      &config.Config{},
			wantErr:  true,
		},
		{
			name:     "nil config",
			instance: "test",
			cfg:      nil,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDaemon(tt.instance, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDaemon() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if d.instance != tt.instance {
					t.Errorf("instance = %v, want %v", d.instance, tt.instance)
				}
				if len(d.components) != 0 {
					t.Errorf("components = %v, want 0", len(d.components))
				}
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid"},
		{name: "bad port", mutate: func(c *config.Config) { c.Server.Port = 70000 }, wantErr: "invalid port"},
		{name: "empty registry", mutate: func(c *config.Config) { c.Models.Registry = nil }, wantErr: "models.registry"},
		{name: "missing default", mutate: func(c *config.Config) { c.Models.Default = "" }, wantErr: "models.default is required"},
		{name: "unknown default", mutate: func(c *config.Config) { c.Models.Default = "gpt-4o" }, wantErr: "not in models.registry"},
		{name: "bad shutdown timeout", mutate: func(c *config.Config) { c.Daemon.ShutdownTimeout = "soon" }, wantErr: "daemon.shutdown_timeout"},
		{name: "zero health interval", mutate: func(c *config.Config) { c.Daemon.HealthCheckInterval = "0s" }, wantErr: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			d, err := NewDaemon("test", cfg)
			if err != nil {
				t.Fatalf("NewDaemon() failed: %v", err)
			}

			err = d.validateConfig()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateConfig() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validateConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddComponent(t *testing.T) {
	cfg := &config.Config{}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{"Comp1"})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	if len(d.components) != 2 {
		t.Errorf("components = %v, want 2", len(d.components))
	}

	stop := d.stopOrder()
	if len(stop) != 2 {
		t.Fatalf("stopOrder() = %v, want 2 entries", stop)
	}
	if stop[0] != "Comp2" {
		t.Errorf("stopOrder()[0] = %v, want Comp2", stop[0])
	}

	d.AddComponent(newMockComponent("Comp1", nil))
	if len(d.components) != 2 || len(d.registered) != 2 {
		t.Errorf("re-registering Comp1 should replace it, got %d components", len(d.components))
	}
}

func TestInitializeComponents(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{"Comp1"})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	ctx := context.Background()
	err := d.initializeComponents(ctx)

	if err != nil {
		t.Errorf("initializeComponents() error = %v", err)
	}

	if !comp1.initCalled {
		t.Error("Comp1.Init() was not called")
	}

	if !comp2.initCalled {
		t.Error("Comp2.Init() was not called")
	}
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{"Comp2"})
	comp2 := newMockComponent("Comp2", []string{"Comp1"})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	ctx := context.Background()
	err := d.initializeComponents(ctx)

	if err == nil {
		t.Error("Expected error for circular dependency, got nil")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp := newMockComponent("Comp", []string{"NonExistent"})

	d.AddComponent(comp)

	ctx := context.Background()
	err := d.initializeComponents(ctx)

	if err == nil {
		t.Error("Expected error for missing dependency, got nil")
	}
}

func TestStartComponents(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	ctx := context.Background()
	err := d.startComponents(ctx)

	if err != nil {
		t.Errorf("startComponents() error = %v", err)
	}

	if !comp1.startCalled {
		t.Error("Comp1.Start() was not called")
	}

	if !comp2.startCalled {
		t.Error("Comp2.Start() was not called")
	}
}

func TestShutdownComponents(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	comp1.stopError = errors.New("stuck")

	ctx := context.Background()
	d.shutdownComponents(ctx)

	if !comp1.stopCalled {
		t.Error("Comp1.Stop() was not called")
	}

	if !comp2.stopCalled {
		t.Error("Comp2.Stop() was not called")
	}
}

func TestComponentHealth(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp1.healthResult.Healthy = true

	comp2 := newMockComponent("Comp2", []string{})
	comp2.healthResult.Healthy = false
	comp2.healthResult.Error = fmt.Errorf("mock error")

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	healths := d.ComponentHealth()

	if len(healths) != 2 {
		t.Errorf("ComponentHealth() returned %v healths, want 2", len(healths))
	}

	if healths["Comp1"].Healthy != true {
		t.Error("Comp1 should be healthy")
	}

	if healths["Comp2"].Healthy != false {
		t.Error("Comp2 should be unhealthy")
	}

	if healths["Comp2"].Error == nil {
		t.Error("Comp2.Error should not be nil")
	}
}

func TestRollback(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080},
	}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	comp2.initError = errors.New("no api key")

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err == nil {
		t.Fatal("expected Comp2 init to fail")
	}
	d.rollback(ctx)

	if !comp1.stopCalled {
		t.Error("Comp1.Stop() was not called during rollback")
	}

	if comp2.stopCalled {
		t.Error("Comp2.Stop() should not be called when its Init failed")
	}

	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestGetComponentByName(t *testing.T) {
	cfg := &config.Config{}
	d, _ := NewDaemon("test", cfg)

	comp1 := newMockComponent("Comp1", []string{})
	comp2 := newMockComponent("Comp2", []string{})

	d.AddComponent(comp1)
	d.AddComponent(comp2)

	tests := []struct {
		name       string
		searchName string
		wantNil    bool
	}{
		{
			name:       "existing component",
			searchName: "Comp1",
			wantNil:    false,
		},
		{
			name:       "non-existing component",
			searchName: "NonExistent",
			wantNil:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := d.getComponentByName(tt.searchName)
			if (comp == nil) != tt.wantNil {
				t.Errorf("getComponentByName() = %v, wantNil %v", comp, tt.wantNil)
			}
		})
	}
}

func TestStartComponentsFollowsDependencyOrder(t *testing.T) {
	d, _ := NewDaemon("test", validConfig())

	var started []string
	server := &orderedComponent{mockComponent: newMockComponent("Server", []string{"Store"}), started: &started}
	store := &orderedComponent{mockComponent: newMockComponent("Store", nil), started: &started}
	d.AddComponent(server)
	d.AddComponent(store)

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	if err := d.startComponents(ctx); err != nil {
		t.Fatalf("startComponents() error = %v", err)
	}

	if len(started) != 2 || started[0] != "Store" || started[1] != "Server" {
		t.Errorf("start order = %v, want [Store Server]", started)
	}
}

func TestComponentHealthHandlesErrorsWithoutResult(t *testing.T) {
	d, _ := NewDaemon("test", validConfig())

	comp := newMockComponent("Broken", nil)
	comp.healthResult = nil
	comp.healthError = errors.New("probe failed")
	d.AddComponent(comp)

	healths := d.ComponentHealth()
	h := healths["Broken"]
	if h == nil {
		t.Fatal("expected a health entry for Broken")
	}
	if h.Healthy {
		t.Error("Broken should be unhealthy")
	}
	if h.Error == nil || h.Error.Error() != "probe failed" {
		t.Errorf("Error = %v, want probe failed", h.Error)
	}
}

type orderedComponent struct {
	*mockComponent
	started *[]string
	stopped *[]string
}

func (o *orderedComponent) Start(ctx context.Context) error {
	if o.started != nil {
		*o.started = append(*o.started, o.name)
	}
	return o.mockComponent.Start(ctx)
}

func (o *orderedComponent) Stop(ctx context.Context) error {
	if o.stopped != nil {
		*o.stopped = append(*o.stopped, o.name)
	}
	return o.mockComponent.Stop(ctx)
}

func TestShutdownFollowsReverseDependencyOrder(t *testing.T) {
	d, _ := NewDaemon("test", validConfig())

	var stopped []string
	server := &orderedComponent{mockComponent: newMockComponent("Server", []string{"Store"}), stopped: &stopped}
	store := &orderedComponent{mockComponent: newMockComponent("Store", nil), stopped: &stopped}
	d.AddComponent(server)
	d.AddComponent(store)

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}
	d.shutdownComponents(ctx)

	if len(stopped) != 2 || stopped[0] != "Server" || stopped[1] != "Store" {
		t.Errorf("stop order = %v, want [Server Store]", stopped)
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want StatusStopped", d.Health())
	}
}

func TestLogHealthTransitionsTracksState(t *testing.T) {
	d, _ := NewDaemon("test", validConfig())
	comp := newMockComponent("Models", nil)
	d.AddComponent(comp)

	previous := make(map[string]bool)
	d.logHealthTransitions(previous)
	if !previous["Models"] {
		t.Error("Models should be recorded healthy")
	}

	comp.healthResult = &ComponentHealth{Name: "Models", Error: errors.New("upstream down")}
	d.logHealthTransitions(previous)
	if previous["Models"] {
		t.Error("Models should be recorded unhealthy")
	}
}
