package app

import (
	"context"
	"errors"
	"time"

	"assessment-engine/internal/domain"
)

// DefaultGrandtestCooldown is the wait between grandtest attempts.
const DefaultGrandtestCooldown = 24 * time.Hour

// EligibilityGuard gates grandtest starts. It fails closed.
type EligibilityGuard struct {
	catalog     Catalog
	attempts    AttemptStore
	completions CompletionStore
	cooldown    time.Duration
	now         func() time.Time
}

func NewEligibilityGuard(catalog Catalog, attempts AttemptStore, completions CompletionStore, cooldown time.Duration) *EligibilityGuard {
	if cooldown <= 0 {
		cooldown = DefaultGrandtestCooldown
	}
	return &EligibilityGuard{
		catalog:     catalog,
		attempts:    attempts,
		completions: completions,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// CanStartGrandtest reports whether every precondition holds. A non-nil error means the
// decision could not be made; the result is then not eligible.
func (g *EligibilityGuard) CanStartGrandtest(ctx context.Context, userID, courseID, enrollmentID string) (domain.Eligibility, error) {
	status, err := g.completions.GetCompletion(ctx, userID, courseID, enrollmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return denied(domain.ReasonNotCompleted), nil
	}
	if err != nil {
		return denied(domain.ReasonNotEligible), err
	}
	if !status.IsCourseCompleted {
		return denied(domain.ReasonNotCompleted), nil
	}
	if !status.GrandtestEligible {
		return denied(domain.ReasonNotEligible), nil
	}
	if status.GrandtestPassed {
		return denied(domain.ReasonAlreadyPassed), nil
	}

	history, err := grandtestAttempts(ctx, g.catalog, g.attempts, userID, courseID)
	if err != nil {
		return denied(domain.ReasonNotEligible), err
	}
	if len(passedTests(history)) > 0 {
		return denied(domain.ReasonAlreadyPassed), nil
	}

	var last *domain.Attempt
	for i := range history {
		if last == nil || history[i].StartedAt.After(last.StartedAt) {
			last = &history[i]
		}
	}
	if last != nil {
		retryAt := last.StartedAt.Add(g.cooldown)
		if g.now().Before(retryAt) {
			out := denied(domain.ReasonCooldownActive)
			out.RetryAt = &retryAt
			return out, nil
		}
	}
	return domain.Eligibility{OK: true}, nil
}

func denied(reason domain.PolicyReason) domain.Eligibility {
	return domain.Eligibility{OK: false, Reason: reason}
}

// eligibilityError turns a negative decision into a PolicyError.
func eligibilityError(e domain.Eligibility) error {
	if e.OK {
		return nil
	}
	return &domain.PolicyError{Reason: e.Reason, RetryAt: e.RetryAt}
}
