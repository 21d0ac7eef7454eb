package memory

import (
	"sync"

	"assessment-engine/internal/app"
)

// SessionStore keeps live attempt sessions in process. One mutex covers lookup, attach and
// removal.
type SessionStore struct {
	mu   sync.Mutex
	byID map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{byID: make(map[string]*app.Session)}
}

func (s *SessionStore) Join(attemptID string, questionIDs, answered []string) *app.Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[attemptID]
	if !ok {
		session = app.NewSession(attemptID)
		s.byID[attemptID] = session
	}
	return session.Attach(questionIDs, answered)
}

func (s *SessionStore) Leave(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byID[attemptID]
	if !ok {
		return
	}
	session.Detach()
	if session.IsEmpty() {
		delete(s.byID, attemptID)
	}
}

func (s *SessionStore) Connections(attemptID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.byID[attemptID]; ok {
		return session.Clients()
	}
	return 0
}
