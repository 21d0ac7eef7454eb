package app

import (
	"sync"

	"assessment-engine/internal/domain"
)

// SessionRepository tracks live attempt sessions (in-memory, Redis, etc). Join and Leave are
// atomic with respect to each other, so a connection never attaches to a session that is
// being dropped.
type SessionRepository interface {
	// Join attaches a connection to the attempt's session, creating it on first use, and
	// returns the navigator shared by every connection on the attempt.
	Join(attemptID string, questionIDs, answered []string) *Navigator
	// Leave detaches a connection and drops the session with its last one.
	Leave(attemptID string)
	// Connections returns how many connections are attached to the attempt.
	Connections(attemptID string) int
}

// Navigator is the client-side cursor and skip set for one attempt. It never feeds scoring
// and is never written to the attempt store.
type Navigator struct {
	mu       sync.Mutex
	order    []string
	index    int
	skipped  map[string]struct{}
	answered map[string]struct{}
}

// NewNavigator starts at the first unanswered question.
func NewNavigator(questionIDs []string, answered []string) *Navigator {
	n := &Navigator{
		order:    append([]string(nil), questionIDs...),
		skipped:  make(map[string]struct{}),
		answered: make(map[string]struct{}, len(answered)),
	}
	for _, id := range answered {
		n.answered[id] = struct{}{}
	}
	for i, id := range n.order {
		if _, ok := n.answered[id]; !ok {
			n.index = i
			break
		}
	}
	return n
}

// Current returns the question under the cursor.
func (n *Navigator) Current() (string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentLocked()
}

func (n *Navigator) currentLocked() (string, int) {
	if len(n.order) == 0 {
		return "", -1
	}
	return n.order[n.index], n.index
}

// Next moves forward, staying on the last question.
func (n *Navigator) Next() (string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index < len(n.order)-1 {
		n.index++
	}
	return n.currentLocked()
}

// Prev moves back, staying on the first question.
func (n *Navigator) Prev() (string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.index > 0 {
		n.index--
	}
	return n.currentLocked()
}

// Goto jumps to a position, including previously skipped questions.
func (n *Navigator) Goto(position int) (string, int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if position < 0 || position >= len(n.order) {
		return "", n.index, domain.Invalid("position", "out of range")
	}
	n.index = position
	id, idx := n.currentLocked()
	return id, idx, nil
}

// Skip marks the current question skipped unless answered, then advances.
func (n *Navigator) Skip() (string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id, _ := n.currentLocked(); id != "" {
		if _, done := n.answered[id]; !done {
			n.skipped[id] = struct{}{}
		}
	}
	if n.index < len(n.order)-1 {
		n.index++
	}
	return n.currentLocked()
}

// MarkAnswered removes the question from the skip set.
func (n *Navigator) MarkAnswered(questionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.skipped, questionID)
	n.answered[questionID] = struct{}{}
}

// Skipped returns skipped, still-unanswered questions in attempt order.
func (n *Navigator) Skipped() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.skipped))
	for _, id := range n.order {
		if _, ok := n.skipped[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Session tracks the connections driving one attempt and their shared navigator.
type Session struct {
	attemptID string

	mu      sync.Mutex
	clients int
	nav     *Navigator
}

// NewSession is exported for infrastructure layers that create sessions.
func NewSession(attemptID string) *Session {
	return &Session{attemptID: attemptID}
}

// AttemptID returns the attempt the session drives.
func (s *Session) AttemptID() string { return s.attemptID }

// Attach registers a connection. The navigator is built on first attach and shared by every
// connection attached to the attempt.
func (s *Session) Attach(questionIDs, answered []string) *Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nav == nil {
		s.nav = NewNavigator(questionIDs, answered)
	}
	s.clients++
	return s.nav
}

// Detach unregisters a connection.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients > 0 {
		s.clients--
	}
}

// Clients returns the number of attached connections.
func (s *Session) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

// IsEmpty reports whether no connection is attached.
func (s *Session) IsEmpty() bool {
	return s.Clients() == 0
}
