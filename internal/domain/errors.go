package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation matches any ValidationError.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound matches any NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrPersistence matches any PersistenceError.
	ErrPersistence = errors.New("storage failure")

	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a question id is not part of the catalog or attempt.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrTestNotFound indicates the test definition could not be loaded.
	ErrTestNotFound = errors.New("test definition not found")
	// ErrCourseNotFound indicates the course outline could not be loaded.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCompletionNotFound means no completion snapshot exists yet.
	ErrCompletionNotFound = errors.New("completion status not found")
	// ErrCertificateNotFound is used internally by stores; callers of verification see ErrCertificateInvalid.
	ErrCertificateNotFound = errors.New("certificate not found")
	// ErrCertificateInvalid is the single answer for every failed verification.
	ErrCertificateInvalid = errors.New("certificate not found or invalid")
	// ErrCertificateNumberTaken signals a number collision; the issuer retries with a new number.
	ErrCertificateNumberTaken = errors.New("certificate number already taken")

	// ErrAttemptNotActive is returned when a terminal attempt receives a mutating call.
	ErrAttemptNotActive = errors.New("attempt is not in progress")

	ErrAttemptsExhausted     = errors.New("attempts exhausted")
	ErrDayLocked             = errors.New("daily test day is locked")
	ErrCooldownActive        = errors.New("grandtest cooldown active")
	ErrAlreadyPassed         = errors.New("grandtest already passed")
	ErrNotCompleted          = errors.New("course not completed")
	ErrNotEligible           = errors.New("not eligible for grandtest")
	ErrInsufficientQuestions = errors.New("not enough questions in pool")
	ErrTestInactive          = errors.New("test definition is inactive")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown entity. Err holds the entity-specific sentinel.
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError around one of the entity sentinels.
func NotFound(entity, id string, sentinel error) error {
	return &NotFoundError{Entity: entity, ID: id, Err: sentinel}
}

// StateError reports an operation that is invalid for the attempt's current status.
type StateError struct {
	AttemptID string
	Status    AttemptStatus
	Op        string
	// Expired is set when the attempt was just auto-submitted by its time limit.
	Expired bool
}

func (e *StateError) Error() string {
	if e.Expired {
		return fmt.Sprintf("%s: attempt %s time limit reached, attempt was submitted", e.Op, e.AttemptID)
	}
	return fmt.Sprintf("%s: attempt %s is %s", e.Op, e.AttemptID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrAttemptNotActive }

// PolicyReason names why a policy blocked an action.
type PolicyReason string

const (
	ReasonAttemptsExhausted     PolicyReason = "attempts_exhausted"
	ReasonDayLocked             PolicyReason = "day_locked"
	ReasonCooldownActive        PolicyReason = "cooldown_active"
	ReasonAlreadyPassed         PolicyReason = "already_passed"
	ReasonNotCompleted          PolicyReason = "not_completed"
	ReasonNotEligible           PolicyReason = "not_eligible"
	ReasonInsufficientQuestions PolicyReason = "insufficient_questions"
	ReasonTestInactive          PolicyReason = "test_inactive"
)

var reasonSentinels = map[PolicyReason]error{
	ReasonAttemptsExhausted:     ErrAttemptsExhausted,
	ReasonDayLocked:             ErrDayLocked,
	ReasonCooldownActive:        ErrCooldownActive,
	ReasonAlreadyPassed:         ErrAlreadyPassed,
	ReasonNotCompleted:          ErrNotCompleted,
	ReasonNotEligible:           ErrNotEligible,
	ReasonInsufficientQuestions: ErrInsufficientQuestions,
	ReasonTestInactive:          ErrTestInactive,
}

// PolicyError is an expected refusal carrying enough detail to explain it.
type PolicyError struct {
	Reason PolicyReason
	// RetryAt is set for cooldowns.
	RetryAt *time.Time
	// RequestedDay and AvailableDay are set for locked daily tests.
	RequestedDay int
	AvailableDay int
	// Used and Limit are set when attempts are exhausted.
	Used  int
	Limit int
	// Have and Need are set when the question pool is too small.
	Have int
	Need int
}

func (e *PolicyError) Error() string {
	switch e.Reason {
	case ReasonAttemptsExhausted:
		return fmt.Sprintf("attempts exhausted: %d of %d used", e.Used, e.Limit)
	case ReasonDayLocked:
		return fmt.Sprintf("day %d is locked: highest available day is %d", e.RequestedDay, e.AvailableDay)
	case ReasonCooldownActive:
		if e.RetryAt != nil {
			return "grandtest cooldown active: retry at " + e.RetryAt.UTC().Format(time.RFC3339)
		}
		return ErrCooldownActive.Error()
	case ReasonInsufficientQuestions:
		return fmt.Sprintf("not enough questions: have %d, need %d", e.Have, e.Need)
	}
	if sentinel, ok := reasonSentinels[e.Reason]; ok {
		return sentinel.Error()
	}
	return string(e.Reason)
}

func (e *PolicyError) Unwrap() error { return reasonSentinels[e.Reason] }

// PersistenceError wraps a storage failure. It is the only retryable class.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err unless it is nil or already classified.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the engine's taxonomy.
func Classified(err error) bool {
	var (
		ve *ValidationError
		ne *NotFoundError
		se *StateError
		pe *PolicyError
		xe *PersistenceError
	)
	return errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &se) ||
		errors.As(err, &pe) || errors.As(err, &xe)
}
