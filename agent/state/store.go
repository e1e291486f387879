package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilSession      = errors.New("session is nil")
	ErrInvalidSession  = errors.New("session id is empty")
)

// Store is the session persistence contract, injected into the orchestrator
// and agents rather than shared as ambient state.
type Store interface {
	Load(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory. The map is guarded for
// cross-session concurrency; within one session the orchestrator serializes
// turns, so the returned pointer is safe to mutate for the duration of a turn.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return ErrNilSession
	}
	if strings.TrimSpace(s.ID) == "" {
		return ErrInvalidSession
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
