package redis

import (
	"context"
	"sync"
	"time"

	"assessment-engine/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Navigators stay in a local map; Redis only carries a liveness marker per attempt so
// other instances and operators can see which attempts have a live connection.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu     sync.Mutex
	active map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		active: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Join(attemptID string, questionIDs, answered []string) *app.Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	session, ok := s.active[attemptID]
	if ok {
		_ = s.client.Expire(ctx, s.key(attemptID), s.ttl).Err()
	} else {
		session = app.NewSession(attemptID)
		s.active[attemptID] = session
		// best-effort liveness marker
		_ = s.client.Set(ctx, s.key(attemptID), "1", s.ttl).Err()
	}
	return session.Attach(questionIDs, answered)
}

func (s *SessionStore) Leave(attemptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.active[attemptID]
	if !ok {
		return
	}
	session.Detach()
	if session.IsEmpty() {
		delete(s.active, attemptID)
		_ = s.client.Del(context.Background(), s.key(attemptID)).Err()
	}
}

func (s *SessionStore) Connections(attemptID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.active[attemptID]; ok {
		return session.Clients()
	}
	return 0
}

// Live reports whether any instance holds a session for the attempt.
func (s *SessionStore) Live(ctx context.Context, attemptID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(attemptID)).Result()
	return n > 0, err
}

func (s *SessionStore) key(attemptID string) string {
	return "attempt:session:" + attemptID
}
