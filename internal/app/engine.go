package app

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"assessment-engine/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine drives test-taking sessions for lesson quizzes, daily tests and grandtests.
type Engine struct {
	catalog   Catalog
	questions QuestionBank
	attempts  AttemptStore
	gate      *ProgressionGate
	guard     *EligibilityGuard
	tracker   *CompletionTracker
	issuer    *CertificateIssuer
	graders   Graders
	now       func() time.Time
	shuffle   func(n int, swap func(i, j int))
	log       *zap.Logger
	metrics   Recorder
}

// AttemptView is an attempt plus its remaining time at read time.
type AttemptView struct {
	domain.Attempt
	RemainingSeconds *int `json:"remainingSeconds,omitempty"`
}

// AttemptQuestion is one question of an attempt as shown to the learner.
type AttemptQuestion struct {
	Position   int             `json:"position"`
	Question   domain.Question `json:"question"`
	UserAnswer string          `json:"userAnswer,omitempty"`
	Answered   bool            `json:"answered"`
}

// StartAttempt opens a new attempt or resumes the owner's in-progress one.
func (e *Engine) StartAttempt(ctx context.Context, owner domain.Owner, testDefinitionID string) (domain.Attempt, error) {
	if strings.TrimSpace(owner.UserID) == "" {
		return domain.Attempt{}, domain.Invalid("userId", "required")
	}
	if strings.TrimSpace(testDefinitionID) == "" {
		return domain.Attempt{}, domain.Invalid("testDefinitionId", "required")
	}
	def, err := e.catalog.TestDefinition(ctx, testDefinitionID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !def.Active {
		return domain.Attempt{}, &domain.PolicyError{Reason: domain.ReasonTestInactive}
	}

	current, ok, err := e.attempts.FindInProgress(ctx, owner.UserID, def.ID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if ok {
		if !current.Expired(e.now()) {
			e.metrics.AttemptStarted(def.Kind, true)
			return current, nil
		}
		// An expired attempt cannot be resumed; submit it and fall through to a fresh start.
		e.autoSubmit(ctx, current.ID)
	}

	if err := e.checkGates(ctx, owner, def); err != nil {
		return domain.Attempt{}, err
	}

	attempt, resumed, err := e.attempts.StartAttempt(ctx, owner.UserID, def.ID, func(prior []domain.Attempt) (domain.Attempt, []domain.Response, error) {
		return e.plan(ctx, owner, def, prior)
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	e.metrics.AttemptStarted(def.Kind, resumed)
	e.log.Info("attempt started",
		zap.String("attempt_id", attempt.ID),
		zap.String("user_id", owner.UserID),
		zap.String("test_id", def.ID),
		zap.String("kind", string(def.Kind)),
		zap.Int("attempt_number", attempt.AttemptNumber),
		zap.Bool("resumed", resumed))
	return attempt, nil
}

func (e *Engine) checkGates(ctx context.Context, owner domain.Owner, def domain.TestDefinition) error {
	switch def.Kind {
	case domain.DailyTest:
		return e.gate.CheckDay(ctx, owner.UserID, def)
	case domain.Grandtest:
		elig, err := e.guard.CanStartGrandtest(ctx, owner.UserID, def.CourseID, owner.EnrollmentID)
		if err != nil {
			return err
		}
		return eligibilityError(elig)
	}
	return nil
}

// plan runs inside the store's atomic start and builds the attempt and its placeholders.
func (e *Engine) plan(ctx context.Context, owner domain.Owner, def domain.TestDefinition, prior []domain.Attempt) (domain.Attempt, []domain.Response, error) {
	used, lastNumber := 0, 0
	for _, a := range prior {
		if a.Status.Terminal() {
			used++
		}
		if a.AttemptNumber > lastNumber {
			lastNumber = a.AttemptNumber
		}
	}
	if def.MaxAttempts > 0 && used >= def.MaxAttempts {
		return domain.Attempt{}, nil, &domain.PolicyError{
			Reason: domain.ReasonAttemptsExhausted,
			Used:   used,
			Limit:  def.MaxAttempts,
		}
	}

	questions, err := e.selectQuestions(ctx, def)
	if err != nil {
		return domain.Attempt{}, nil, err
	}

	attempt := domain.Attempt{
		ID:                     uuid.NewString(),
		UserID:                 owner.UserID,
		EnrollmentID:           owner.EnrollmentID,
		CourseID:               def.CourseID,
		TestDefinitionID:       def.ID,
		Kind:                   def.Kind,
		DayNumber:              def.DayNumber,
		AttemptNumber:          lastNumber + 1,
		Status:                 domain.StatusInProgress,
		StartedAt:              e.now(),
		TimeLimitMinutes:       def.TimeLimitMinutes,
		PassingScorePercentage: def.PassingScorePercentage,
		TotalQuestions:         len(questions),
	}
	responses := make([]domain.Response, 0, len(questions))
	for i, q := range questions {
		attempt.MaxScore += q.PointValue()
		responses = append(responses, domain.Response{
			AttemptID:  attempt.ID,
			QuestionID: q.ID,
			Position:   i,
			MaxPoints:  q.PointValue(),
		})
	}
	return attempt, responses, nil
}

// selectQuestions takes the curated set in order when one is assigned, otherwise a random
// sample without replacement from the active pool.
func (e *Engine) selectQuestions(ctx context.Context, def domain.TestDefinition) ([]domain.Question, error) {
	pool, err := e.questions.GetQuestions(ctx, def.CourseID)
	if err != nil {
		return nil, err
	}

	if len(def.QuestionIDs) > 0 {
		byID := make(map[string]domain.Question, len(pool))
		for _, q := range pool {
			byID[q.ID] = q
		}
		need := def.QuestionCount
		if need <= 0 || need > len(def.QuestionIDs) {
			need = len(def.QuestionIDs)
		}
		selected := make([]domain.Question, 0, need)
		for _, id := range def.QuestionIDs {
			if len(selected) == need {
				break
			}
			if q, ok := byID[id]; ok && q.Active {
				selected = append(selected, q)
			}
		}
		if len(selected) < need {
			return nil, &domain.PolicyError{Reason: domain.ReasonInsufficientQuestions, Have: len(selected), Need: need}
		}
		return selected, nil
	}

	eligible := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if !q.Active {
			continue
		}
		if def.Category != "" && !strings.EqualFold(q.Category, def.Category) {
			continue
		}
		eligible = append(eligible, q)
	}
	need := def.QuestionCount
	if need <= 0 {
		need = len(eligible)
	}
	if need == 0 || len(eligible) < need {
		return nil, &domain.PolicyError{Reason: domain.ReasonInsufficientQuestions, Have: len(eligible), Need: max(need, 1)}
	}
	e.shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	return eligible[:need], nil
}

// RecordAnswer grades and upserts the answer for one question. A second call for the same
// question overwrites the first.
func (e *Engine) RecordAnswer(ctx context.Context, attemptID, questionID, answer string, timeSpentSeconds int) (domain.Response, error) {
	if strings.TrimSpace(answer) == "" {
		return domain.Response{}, domain.Invalid("answer", "must not be empty")
	}
	if timeSpentSeconds < 0 {
		return domain.Response{}, domain.Invalid("timeSpentSeconds", "must not be negative")
	}
	attempt, err := e.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Response{}, err
	}
	if err := e.ensureActive(ctx, attempt, "record answer"); err != nil {
		return domain.Response{}, err
	}
	question, err := e.questions.GetQuestion(ctx, attempt.CourseID, questionID)
	if err != nil {
		return domain.Response{}, err
	}
	correct := e.graders.Grade(question, answer)

	resp, err := e.attempts.UpsertResponse(ctx, attemptID, questionID, func(a domain.Attempt, current domain.Response) (domain.Response, error) {
		if err := e.checkActive(a, "record answer"); err != nil {
			return domain.Response{}, err
		}
		now := e.now()
		current.UserAnswer = answer
		current.IsCorrect = correct
		current.PointsEarned = 0
		if correct {
			current.PointsEarned = current.MaxPoints
		}
		current.TimeSpentSeconds = timeSpentSeconds
		current.AnsweredAt = &now
		return current, nil
	})
	if err != nil {
		var se *domain.StateError
		if errors.As(err, &se) && se.Expired {
			e.autoSubmit(ctx, attemptID)
		}
		return domain.Response{}, err
	}
	return resp, nil
}

// Finalize scores the attempt and runs the downstream pipeline.
func (e *Engine) Finalize(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return e.finalize(ctx, attemptID, domain.StatusCompleted, "finalize")
}

func (e *Engine) finalize(ctx context.Context, attemptID string, status domain.AttemptStatus, op string) (domain.Attempt, error) {
	attempt, err := e.attempts.Transition(ctx, attemptID, func(a domain.Attempt, responses []domain.Response) (domain.Attempt, error) {
		if a.Status.Terminal() {
			return a, &domain.StateError{AttemptID: a.ID, Status: a.Status, Op: op}
		}
		now := e.now()
		final := status
		if a.Expired(now) {
			final = domain.StatusSubmitted
		}
		return score(a, responses, final, now), nil
	})
	if err != nil {
		var se *domain.StateError
		if errors.As(err, &se) && se.Status.Scored() {
			// Downstream steps are idempotent; rerun them so a retried finalize completes a
			// pipeline that failed after scoring.
			if done, getErr := e.attempts.GetAttempt(ctx, attemptID); getErr == nil {
				if pipeErr := e.afterFinalize(ctx, done); pipeErr != nil {
					e.log.Warn("finalize pipeline retry failed", zap.String("attempt_id", attemptID), zap.Error(pipeErr))
				}
			}
		}
		return domain.Attempt{}, err
	}

	auto := attempt.Status == domain.StatusSubmitted
	e.metrics.AttemptFinalized(attempt.Kind, attempt.Passed, auto)
	e.log.Info("attempt finalized",
		zap.String("attempt_id", attempt.ID),
		zap.String("kind", string(attempt.Kind)),
		zap.Int("score", attempt.Score),
		zap.Int("max_score", attempt.MaxScore),
		zap.Float64("percentage", attempt.Percentage),
		zap.Bool("passed", attempt.Passed),
		zap.Bool("auto", auto))

	if err := e.afterFinalize(ctx, attempt); err != nil {
		return attempt, err
	}
	return attempt, nil
}

// score sums earned points and stored maximums; max score comes from start-time point values.
func score(a domain.Attempt, responses []domain.Response, status domain.AttemptStatus, now time.Time) domain.Attempt {
	total, maxScore := 0, 0
	for _, r := range responses {
		total += r.PointsEarned
		maxScore += r.MaxPoints
	}
	a.Score = total
	a.MaxScore = maxScore
	a.Percentage = 0
	a.Passed = false
	if maxScore > 0 {
		a.Percentage = math.Round(float64(total)*100/float64(maxScore)*100) / 100
		a.Passed = float64(total)*100 >= a.PassingScorePercentage*float64(maxScore)
	}
	a.Status = status
	a.CompletedAt = &now
	return a
}

func (e *Engine) afterFinalize(ctx context.Context, a domain.Attempt) error {
	switch a.Kind {
	case domain.LessonQuiz:
		_, err := e.tracker.CheckCompletion(ctx, a.UserID, a.CourseID, a.EnrollmentID)
		return err
	case domain.Grandtest:
		if a.Passed {
			if _, err := e.issuer.Issue(ctx, a); err != nil {
				return err
			}
		}
		_, err := e.tracker.CheckCompletion(ctx, a.UserID, a.CourseID, a.EnrollmentID)
		return err
	}
	return nil
}

// Abandon ends an in-progress attempt without scoring. It still consumes an attempt.
func (e *Engine) Abandon(ctx context.Context, attemptID string) (domain.Attempt, error) {
	current, err := e.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := e.ensureActive(ctx, current, "abandon"); err != nil {
		return domain.Attempt{}, err
	}
	attempt, err := e.attempts.Transition(ctx, attemptID, func(a domain.Attempt, _ []domain.Response) (domain.Attempt, error) {
		if a.Status.Terminal() {
			return a, &domain.StateError{AttemptID: a.ID, Status: a.Status, Op: "abandon"}
		}
		now := e.now()
		a.Status = domain.StatusAbandoned
		a.CompletedAt = &now
		return a, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	e.metrics.AttemptAbandoned(attempt.Kind)
	e.log.Info("attempt abandoned", zap.String("attempt_id", attempt.ID), zap.String("user_id", attempt.UserID))
	return attempt, nil
}

// GetAttempt is the polling path: an expired in-progress attempt is submitted before it is returned.
func (e *Engine) GetAttempt(ctx context.Context, attemptID string) (AttemptView, error) {
	attempt, err := e.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	now := e.now()
	if attempt.Status == domain.StatusInProgress && attempt.Expired(now) {
		e.autoSubmit(ctx, attemptID)
		if attempt, err = e.attempts.GetAttempt(ctx, attemptID); err != nil {
			return AttemptView{}, err
		}
	}
	view := AttemptView{Attempt: attempt}
	if attempt.Status == domain.StatusInProgress {
		if left, ok := attempt.Remaining(now); ok {
			secs := int(left / time.Second)
			view.RemainingSeconds = &secs
		}
	}
	return view, nil
}

// AttemptQuestions lists the attempt's questions in attempt order without answer keys.
func (e *Engine) AttemptQuestions(ctx context.Context, attemptID string) ([]AttemptQuestion, error) {
	attempt, err := e.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	responses, err := e.attempts.Responses(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	out := make([]AttemptQuestion, 0, len(responses))
	for _, r := range responses {
		q, err := e.questions.GetQuestion(ctx, attempt.CourseID, r.QuestionID)
		if err != nil {
			return nil, err
		}
		out = append(out, AttemptQuestion{
			Position:   r.Position,
			Question:   q.Public(),
			UserAnswer: r.UserAnswer,
			Answered:   r.Answered(),
		})
	}
	return out, nil
}

// Review partitions the attempt's questions. skipped is the caller's local skip set.
func (e *Engine) Review(ctx context.Context, attemptID string, skipped []string) (domain.Review, error) {
	responses, err := e.attempts.Responses(ctx, attemptID)
	if err != nil {
		return domain.Review{}, err
	}
	if len(responses) == 0 {
		if _, err := e.attempts.GetAttempt(ctx, attemptID); err != nil {
			return domain.Review{}, err
		}
	}
	skip := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		skip[id] = true
	}
	sort.SliceStable(responses, func(i, j int) bool { return responses[i].Position < responses[j].Position })

	review := domain.Review{
		AttemptID:         attemptID,
		TotalQuestions:    len(responses),
		Answered:          []string{},
		SkippedUnanswered: []string{},
		Unanswered:        []string{},
	}
	for _, r := range responses {
		switch {
		case r.Answered():
			review.Answered = append(review.Answered, r.QuestionID)
		case skip[r.QuestionID]:
			review.SkippedUnanswered = append(review.SkippedUnanswered, r.QuestionID)
		default:
			review.Unanswered = append(review.Unanswered, r.QuestionID)
		}
	}
	return review, nil
}

// Now is the engine clock; transports use it to arm attempt deadlines.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ListAttempts returns the user's attempts for one test definition.
func (e *Engine) ListAttempts(ctx context.Context, userID, testDefinitionID string) ([]domain.Attempt, error) {
	return e.attempts.ListAttempts(ctx, userID, []string{testDefinitionID})
}

func (e *Engine) checkActive(a domain.Attempt, op string) error {
	if a.Status.Terminal() {
		return &domain.StateError{AttemptID: a.ID, Status: a.Status, Op: op}
	}
	if a.Expired(e.now()) {
		return &domain.StateError{AttemptID: a.ID, Status: domain.StatusSubmitted, Op: op, Expired: true}
	}
	return nil
}

// ensureActive is checkActive plus the server-side auto-submit on expiry.
func (e *Engine) ensureActive(ctx context.Context, a domain.Attempt, op string) error {
	err := e.checkActive(a, op)
	var se *domain.StateError
	if errors.As(err, &se) && se.Expired {
		e.autoSubmit(ctx, a.ID)
	}
	return err
}

func (e *Engine) autoSubmit(ctx context.Context, attemptID string) {
	_, err := e.finalize(ctx, attemptID, domain.StatusSubmitted, "auto-submit")
	if err == nil || errors.Is(err, domain.ErrAttemptNotActive) {
		return
	}
	e.log.Error("auto-submit failed", zap.String("attempt_id", attemptID), zap.Error(err))
}

func defaultShuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}
