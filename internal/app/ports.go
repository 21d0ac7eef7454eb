package app

import (
	"context"
	"time"

	"assessment-engine/internal/domain"
)

// QuestionBank loads question content (from cache/backing store).
type QuestionBank interface {
	GetQuestions(ctx context.Context, courseID string) ([]domain.Question, error)
	GetQuestion(ctx context.Context, courseID, questionID string) (domain.Question, error)
}

// Catalog exposes test definitions and course structure owned by the content collaborator.
type Catalog interface {
	TestDefinition(ctx context.Context, id string) (domain.TestDefinition, error)
	TestDefinitions(ctx context.Context, courseID string, kind domain.TestKind) ([]domain.TestDefinition, error)
	CourseOutline(ctx context.Context, courseID string) (domain.CourseOutline, error)
}

// PlanFunc builds a new attempt and its placeholder responses from the owner's prior attempts.
type PlanFunc func(prior []domain.Attempt) (domain.Attempt, []domain.Response, error)

// ResponseFunc computes the new response from the locked attempt and the stored slot.
type ResponseFunc func(attempt domain.Attempt, current domain.Response) (domain.Response, error)

// TransitionFunc computes the next attempt state from the locked attempt and all its responses.
type TransitionFunc func(attempt domain.Attempt, responses []domain.Response) (domain.Attempt, error)

// AttemptStore persists attempts and responses. Attempts are never deleted.
type AttemptStore interface {
	// StartAttempt returns the in-progress attempt for (userID, testDefinitionID) with
	// resumed=true if one exists. Otherwise it calls plan with every prior attempt and
	// persists the result. The existence check and insert happen atomically.
	StartAttempt(ctx context.Context, userID, testDefinitionID string, plan PlanFunc) (attempt domain.Attempt, resumed bool, err error)
	FindInProgress(ctx context.Context, userID, testDefinitionID string) (domain.Attempt, bool, error)
	GetAttempt(ctx context.Context, id string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, userID string, testDefinitionIDs []string) ([]domain.Attempt, error)
	// Responses returns the attempt's responses ordered by position.
	Responses(ctx context.Context, attemptID string) ([]domain.Response, error)
	// UpsertResponse overwrites the slot for (attemptID, questionID). fn runs while the
	// attempt is locked; returning an error aborts the write.
	UpsertResponse(ctx context.Context, attemptID, questionID string, fn ResponseFunc) (domain.Response, error)
	// Transition runs fn against the locked attempt and its responses and saves the result.
	Transition(ctx context.Context, attemptID string, fn TransitionFunc) (domain.Attempt, error)
}

// LessonProgress is the lesson-completion source.
type LessonProgress interface {
	CompletedLessons(ctx context.Context, userID, courseID string) (map[string]bool, error)
	MarkLessonCompleted(ctx context.Context, userID, courseID, lessonID string, at time.Time) error
}

// CompletionStore keeps one completion snapshot per (user, course, enrollment).
type CompletionStore interface {
	SaveCompletion(ctx context.Context, status domain.CourseCompletionStatus) error
	GetCompletion(ctx context.Context, userID, courseID, enrollmentID string) (domain.CourseCompletionStatus, error)
}

// CertificateStore is append-only apart from invalidation.
type CertificateStore interface {
	// CreateCertificate inserts cert unless the attempt already has one, in which case the
	// existing certificate is returned with created=false. A clashing certificate number
	// yields domain.ErrCertificateNumberTaken.
	CreateCertificate(ctx context.Context, cert domain.Certificate) (stored domain.Certificate, created bool, err error)
	CertificateByAttempt(ctx context.Context, attemptID string) (domain.Certificate, error)
	// FindCertificate matches the exact (number, code) pair among valid certificates.
	FindCertificate(ctx context.Context, number, code string) (domain.Certificate, error)
	ListCertificates(ctx context.Context, userID, courseID string) ([]domain.Certificate, error)
	InvalidateCertificate(ctx context.Context, id string) error
}

// Recorder receives engine events for metrics.
type Recorder interface {
	AttemptStarted(kind domain.TestKind, resumed bool)
	AttemptFinalized(kind domain.TestKind, passed, auto bool)
	AttemptAbandoned(kind domain.TestKind)
	CertificateIssued()
	CertificateVerified(valid bool)
}

type nopRecorder struct{}

func (nopRecorder) AttemptStarted(domain.TestKind, bool)         {}
func (nopRecorder) AttemptFinalized(domain.TestKind, bool, bool) {}
func (nopRecorder) AttemptAbandoned(domain.TestKind)             {}
func (nopRecorder) CertificateIssued()                           {}
func (nopRecorder) CertificateVerified(bool)                     {}
