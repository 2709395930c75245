package components

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codeer-ai/lybot/internal/daemon"
	"github.com/codeer-ai/lybot/internal/session"
)

// SessionsComponent holds the in-memory conversation store. History does not
// outlive the process.
type SessionsComponent struct {
	store *session.MemoryStore
	mu    sync.RWMutex
}

func NewSessionsComponent() *SessionsComponent {
	return &SessionsComponent{}
}

func (s *SessionsComponent) Name() string {
	return "Sessions"
}

func (s *SessionsComponent) Dependencies() []string {
	return []string{}
}

func (s *SessionsComponent) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store = session.NewMemoryStore()
	slog.Info("Session store initialized", "component", s.Name())
	return nil
}

func (s *SessionsComponent) Start(ctx context.Context) error {
	return nil
}

func (s *SessionsComponent) Stop(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return nil
	}
	if n := s.store.Len(); n > 0 {
		slog.Info("Discarding in-memory sessions", "component", s.Name(), "sessions", n)
	}
	return nil
}

func (s *SessionsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return &daemon.ComponentHealth{Name: s.Name(), Healthy: false, Error: errNotInitialized}, nil
	}
	return &daemon.ComponentHealth{Name: s.Name(), Healthy: true}, nil
}

func (s *SessionsComponent) GetStore() *session.MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}
