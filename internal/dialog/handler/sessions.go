package handler

import (
	"context"
	"sync"

	"github.com/voicetyped/dialoguekit/internal/runtime"
	"github.com/voicetyped/dialoguekit/pkg/world"
)

type activeSession struct {
	id       string
	playerID string
	host     *runtime.Host
	world    *world.World
	cancel   context.CancelFunc
	detach   func()
}

// SessionStore holds active dialogue sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*activeSession
}

func newSessionStore() SessionStore {
	return SessionStore{sessions: make(map[string]*activeSession)}
}

func (s *SessionStore) get(id string) (*activeSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	as, ok := s.sessions[id]
	return as, ok
}

// add stores as unless the id is taken.
func (s *SessionStore) add(as *activeSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[as.id]; taken {
		return false
	}
	s.sessions[as.id] = as
	return true
}

func (s *SessionStore) remove(id string) (*activeSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	as, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return as, ok
}

func (s *SessionStore) snapshot() []*activeSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*activeSession, 0, len(s.sessions))
	for _, as := range s.sessions {
		out = append(out, as)
	}
	return out
}

// Len reports the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
