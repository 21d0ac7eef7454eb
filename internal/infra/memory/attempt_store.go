package memory

import (
	"context"
	"sort"
	"sync"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. One mutex serializes every
// write, which gives StartAttempt, UpsertResponse and Transition their atomicity.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	order     []string
	responses map[string][]domain.Response
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		responses: make(map[string][]domain.Response),
	}
}

func (s *AttemptStore) StartAttempt(_ context.Context, userID, testDefinitionID string, plan app.PlanFunc) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior []domain.Attempt
	for _, id := range s.order {
		a := s.attempts[id]
		if a.UserID != userID || a.TestDefinitionID != testDefinitionID {
			continue
		}
		if a.Status == domain.StatusInProgress {
			return a, true, nil
		}
		prior = append(prior, a)
	}

	attempt, responses, err := plan(prior)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	s.attempts[attempt.ID] = attempt
	s.order = append(s.order, attempt.ID)
	s.responses[attempt.ID] = append([]domain.Response(nil), responses...)
	return attempt, false, nil
}

func (s *AttemptStore) FindInProgress(_ context.Context, userID, testDefinitionID string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		a := s.attempts[id]
		if a.UserID == userID && a.TestDefinitionID == testDefinitionID && a.Status == domain.StatusInProgress {
			return a, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, id string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.NotFound("attempt", id, domain.ErrAttemptNotFound)
	}
	return a, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, userID string, testDefinitionIDs []string) ([]domain.Attempt, error) {
	want := make(map[string]bool, len(testDefinitionIDs))
	for _, id := range testDefinitionIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, id := range s.order {
		a := s.attempts[id]
		if a.UserID == userID && want[a.TestDefinitionID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AttemptStore) Responses(_ context.Context, attemptID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, domain.NotFound("attempt", attemptID, domain.ErrAttemptNotFound)
	}
	out := append([]domain.Response(nil), s.responses[attemptID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *AttemptStore) UpsertResponse(_ context.Context, attemptID, questionID string, fn app.ResponseFunc) (domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Response{}, domain.NotFound("attempt", attemptID, domain.ErrAttemptNotFound)
	}
	slots := s.responses[attemptID]
	for i := range slots {
		if slots[i].QuestionID != questionID {
			continue
		}
		next, err := fn(a, slots[i])
		if err != nil {
			return domain.Response{}, err
		}
		next.AttemptID = attemptID
		next.QuestionID = questionID
		next.Position = slots[i].Position
		next.MaxPoints = slots[i].MaxPoints
		slots[i] = next
		return next, nil
	}
	return domain.Response{}, domain.NotFound("question", questionID, domain.ErrQuestionNotFound)
}

func (s *AttemptStore) Transition(_ context.Context, attemptID string, fn app.TransitionFunc) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.NotFound("attempt", attemptID, domain.ErrAttemptNotFound)
	}
	responses := append([]domain.Response(nil), s.responses[attemptID]...)
	next, err := fn(a, responses)
	if err != nil {
		return domain.Attempt{}, err
	}
	next.ID = a.ID
	s.attempts[attemptID] = next
	return next, nil
}
