package memory

import (
	"context"
	"sync"
	"time"

	"assessment-engine/internal/domain"
)

// ProgressStore keeps lesson completions and completion snapshots in memory.
type ProgressStore struct {
	mu          sync.RWMutex
	lessons     map[string]map[string]time.Time
	completions map[string]domain.CourseCompletionStatus
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		lessons:     make(map[string]map[string]time.Time),
		completions: make(map[string]domain.CourseCompletionStatus),
	}
}

func lessonKey(userID, courseID string) string {
	return userID + "\x00" + courseID
}

func completionKey(userID, courseID, enrollmentID string) string {
	return userID + "\x00" + courseID + "\x00" + enrollmentID
}

func (s *ProgressStore) CompletedLessons(_ context.Context, userID, courseID string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool)
	for id := range s.lessons[lessonKey(userID, courseID)] {
		out[id] = true
	}
	return out, nil
}

// MarkLessonCompleted keeps the first completion time on repeats.
func (s *ProgressStore) MarkLessonCompleted(_ context.Context, userID, courseID, lessonID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := lessonKey(userID, courseID)
	done, ok := s.lessons[key]
	if !ok {
		done = make(map[string]time.Time)
		s.lessons[key] = done
	}
	if _, seen := done[lessonID]; !seen {
		done[lessonID] = at
	}
	return nil
}

func (s *ProgressStore) SaveCompletion(_ context.Context, status domain.CourseCompletionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions[completionKey(status.UserID, status.CourseID, status.EnrollmentID)] = status
	return nil
}

func (s *ProgressStore) GetCompletion(_ context.Context, userID, courseID, enrollmentID string) (domain.CourseCompletionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.completions[completionKey(userID, courseID, enrollmentID)]
	if !ok {
		return domain.CourseCompletionStatus{}, domain.NotFound("completion", userID, domain.ErrCompletionNotFound)
	}
	return status, nil
}
