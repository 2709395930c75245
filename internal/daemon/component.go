package daemon

import (
	"context"
)

// HealthStatus is the lifecycle state of the daemon as a whole.
type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

// ComponentHealth is one component's answer to a health probe.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Summary renders the probe result the way GET /health reports it.
func (h ComponentHealth) Summary() string {
	switch {
	case h.Healthy:
		return "healthy"
	case h.Error != nil:
		return "unhealthy: " + h.Error.Error()
	default:
		return "unhealthy"
	}
}

// Component is a unit managed by the Daemon. Init runs in dependency order
// before any Start; Stop runs in reverse start order.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
