package app

import (
	"context"

	"assessment-engine/internal/domain"
)

// DefaultDailyPassThreshold is the percentage a daily test must reach to unlock the next day.
const DefaultDailyPassThreshold = 90.0

// ProgressionGate decides which daily-test day a learner may attempt.
type ProgressionGate struct {
	catalog   Catalog
	attempts  AttemptStore
	threshold float64
}

func NewProgressionGate(catalog Catalog, attempts AttemptStore, threshold float64) *ProgressionGate {
	if threshold <= 0 {
		threshold = DefaultDailyPassThreshold
	}
	return &ProgressionGate{catalog: catalog, attempts: attempts, threshold: threshold}
}

// NextAvailableDay recomputes the highest unlocked day from the learner's history.
func (g *ProgressionGate) NextAvailableDay(ctx context.Context, userID, courseID string) (int, error) {
	defs, err := g.catalog.TestDefinitions(ctx, courseID, domain.DailyTest)
	if err != nil {
		return 0, err
	}
	if len(defs) == 0 {
		return 1, nil
	}
	ids := make([]string, 0, len(defs))
	for _, def := range defs {
		ids = append(ids, def.ID)
	}
	history, err := g.attempts.ListAttempts(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	return NextDay(defs, history, g.threshold), nil
}

// CheckDay rejects a daily test whose day is beyond the next available day.
func (g *ProgressionGate) CheckDay(ctx context.Context, userID string, def domain.TestDefinition) error {
	if def.Kind != domain.DailyTest {
		return nil
	}
	next, err := g.NextAvailableDay(ctx, userID, def.CourseID)
	if err != nil {
		return err
	}
	if def.DayNumber > next {
		return &domain.PolicyError{
			Reason:       domain.ReasonDayLocked,
			RequestedDay: def.DayNumber,
			AvailableDay: next,
		}
	}
	return nil
}

// NextDay is 1 plus the number of consecutive days, counted from day 1, whose best scored
// attempt reached threshold. The scan stops at the first day without one.
func NextDay(defs []domain.TestDefinition, history []domain.Attempt, threshold float64) int {
	dayOf := make(map[string]int, len(defs))
	for _, def := range defs {
		dayOf[def.ID] = def.DayNumber
	}

	best := make(map[int]float64)
	for _, a := range history {
		if !a.Status.Scored() {
			continue
		}
		day, ok := dayOf[a.TestDefinitionID]
		if !ok {
			day = a.DayNumber
		}
		if day <= 0 {
			continue
		}
		if cur, seen := best[day]; !seen || a.Percentage > cur {
			best[day] = a.Percentage
		}
	}

	day := 1
	for {
		score, ok := best[day]
		if !ok || score < threshold {
			return day
		}
		day++
	}
}
