// Package session keeps per-session conversation history in memory.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeer-ai/lybot/internal/model/contract"
)

// Store holds ordered message history per session id. Implementations copy
// on the way in and out so stored history is never aliased.
type Store interface {
	Get(id string) []contract.Message
	Append(id string, msgs []contract.Message)
	Clear(id string) bool
	ClearAll() int
	Len() int
}

type entry struct {
	messages  []contract.Message
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore is a process-lifetime Store with no eviction.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(id string) []contract.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return contract.CloneMessages(e.messages)
}

// Append concatenates msgs after the existing history, creating the session
// on first use.
func (s *MemoryStore) Append(id string, msgs []contract.Message) {
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{createdAt: now}
		s.sessions[id] = e
	}
	e.messages = append(e.messages, contract.CloneMessages(msgs)...)
	e.updatedAt = now
}

// Clear removes one session and reports whether it existed.
func (s *MemoryStore) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// ClearAll removes every session and returns how many there were.
func (s *MemoryStore) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	s.sessions = make(map[string]*entry)
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Meta describes a stored session without its messages.
type Meta struct {
	ID        string
	Messages  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *MemoryStore) Meta(id string) (Meta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return Meta{}, false
	}
	return Meta{ID: id, Messages: len(e.messages), CreatedAt: e.createdAt, UpdatedAt: e.updatedAt}, true
}

// NewID returns the id used when a client supplies none.
func NewID(now time.Time) string {
	return fmt.Sprintf("session-%d", now.Unix())
}

var _ Store = (*MemoryStore)(nil)
