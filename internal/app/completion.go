package app

import (
	"context"
	"errors"
	"time"

	"assessment-engine/internal/domain"
	"go.uber.org/zap"
)

// CompletionTracker recomputes and caches course completion snapshots.
// It must be invoked whenever a lesson completes or a quiz/grandtest attempt is finalized.
type CompletionTracker struct {
	catalog      Catalog
	attempts     AttemptStore
	lessons      LessonProgress
	completions  CompletionStore
	certificates CertificateStore
	now          func() time.Time
	log          *zap.Logger
}

func NewCompletionTracker(catalog Catalog, attempts AttemptStore, lessons LessonProgress, completions CompletionStore, certificates CertificateStore) *CompletionTracker {
	return &CompletionTracker{
		catalog:      catalog,
		attempts:     attempts,
		lessons:      lessons,
		completions:  completions,
		certificates: certificates,
		now:          time.Now,
		log:          zap.NewNop(),
	}
}

// CheckCompletion walks the course outline, derives the snapshot and upserts it.
func (t *CompletionTracker) CheckCompletion(ctx context.Context, userID, courseID, enrollmentID string) (domain.CourseCompletionStatus, error) {
	outline, err := t.catalog.CourseOutline(ctx, courseID)
	if err != nil {
		return domain.CourseCompletionStatus{}, err
	}
	done, err := t.lessons.CompletedLessons(ctx, userID, courseID)
	if err != nil {
		return domain.CourseCompletionStatus{}, err
	}

	status := domain.CourseCompletionStatus{
		UserID:       userID,
		CourseID:     courseID,
		EnrollmentID: enrollmentID,
	}

	var quizIDs []string
	for _, module := range outline.Modules {
		for _, lesson := range module.Lessons {
			if !lesson.Active {
				continue
			}
			status.TotalLessons++
			if done[lesson.ID] {
				status.LessonsCompleted++
			}
		}
		for _, quizID := range module.QuizIDs {
			def, err := t.catalog.TestDefinition(ctx, quizID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return domain.CourseCompletionStatus{}, err
			}
			if !def.Active {
				continue
			}
			quizIDs = append(quizIDs, def.ID)
		}
	}
	status.TotalQuizzes = len(quizIDs)

	if len(quizIDs) > 0 {
		attempts, err := t.attempts.ListAttempts(ctx, userID, quizIDs)
		if err != nil {
			return domain.CourseCompletionStatus{}, err
		}
		status.QuizzesCompleted = len(passedTests(attempts))
	}

	status.IsCourseCompleted = status.TotalLessons > 0 && status.TotalQuizzes > 0 &&
		status.LessonsCompleted == status.TotalLessons &&
		status.QuizzesCompleted == status.TotalQuizzes
	status.GrandtestEligible = status.IsCourseCompleted

	if status.GrandtestPassed, err = t.grandtestPassed(ctx, userID, courseID); err != nil {
		return domain.CourseCompletionStatus{}, err
	}
	certs, err := t.certificates.ListCertificates(ctx, userID, courseID)
	if err != nil {
		return domain.CourseCompletionStatus{}, err
	}
	for _, c := range certs {
		if c.IsValid {
			status.CertificateIssued = true
			break
		}
	}

	status.LastUpdated = t.now()
	if err := t.completions.SaveCompletion(ctx, status); err != nil {
		return domain.CourseCompletionStatus{}, err
	}
	t.log.Debug("completion refreshed",
		zap.String("user_id", userID),
		zap.String("course_id", courseID),
		zap.Bool("completed", status.IsCourseCompleted))
	return status, nil
}

// MarkLessonCompleted records a lesson completion event and refreshes the snapshot.
func (t *CompletionTracker) MarkLessonCompleted(ctx context.Context, userID, courseID, enrollmentID, lessonID string) (domain.CourseCompletionStatus, error) {
	if lessonID == "" {
		return domain.CourseCompletionStatus{}, domain.Invalid("lessonId", "required")
	}
	if err := t.lessons.MarkLessonCompleted(ctx, userID, courseID, lessonID, t.now()); err != nil {
		return domain.CourseCompletionStatus{}, err
	}
	return t.CheckCompletion(ctx, userID, courseID, enrollmentID)
}

// Status returns the cached snapshot without recomputing it.
func (t *CompletionTracker) Status(ctx context.Context, userID, courseID, enrollmentID string) (domain.CourseCompletionStatus, error) {
	return t.completions.GetCompletion(ctx, userID, courseID, enrollmentID)
}

func (t *CompletionTracker) grandtestPassed(ctx context.Context, userID, courseID string) (bool, error) {
	attempts, err := grandtestAttempts(ctx, t.catalog, t.attempts, userID, courseID)
	if err != nil {
		return false, err
	}
	return len(passedTests(attempts)) > 0, nil
}

// passedTests returns the test definition ids with at least one passed attempt.
func passedTests(attempts []domain.Attempt) map[string]bool {
	out := make(map[string]bool)
	for _, a := range attempts {
		if a.Passed && a.Status.Scored() {
			out[a.TestDefinitionID] = true
		}
	}
	return out
}

func grandtestAttempts(ctx context.Context, catalog Catalog, store AttemptStore, userID, courseID string) ([]domain.Attempt, error) {
	defs, err := catalog.TestDefinitions(ctx, courseID, domain.Grandtest)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	return store.ListAttempts(ctx, userID, ids)
}
