package postgres

import (
	"context"
	"database/sql"
	"errors"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"github.com/uptrace/bun"
)

// StartAttempt serializes starts per (user, test) with a transaction-scoped advisory lock.
// The partial unique index on in-progress attempts backs the same rule.
func (s *Store) StartAttempt(ctx context.Context, userID, testDefinitionID string, plan app.PlanFunc) (domain.Attempt, bool, error) {
	var (
		out     domain.Attempt
		resumed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", userID+"/"+testDefinitionID); err != nil {
			return err
		}

		var rows []attemptRow
		err := tx.NewSelect().Model(&rows).
			Where("user_id = ?", userID).
			Where("test_definition_id = ?", testDefinitionID).
			Order("attempt_number ASC").
			Scan(ctx)
		if err != nil {
			return err
		}

		prior := make([]domain.Attempt, 0, len(rows))
		for _, r := range rows {
			if domain.AttemptStatus(r.Status) == domain.StatusInProgress {
				out, resumed = r.domain(), true
				return nil
			}
			prior = append(prior, r.domain())
		}

		attempt, responses, err := plan(prior)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(newAttemptRow(attempt)).Exec(ctx); err != nil {
			return err
		}
		if len(responses) > 0 {
			slots := make([]responseRow, len(responses))
			for i, r := range responses {
				slots[i] = newResponseRow(r)
			}
			if _, err := tx.NewInsert().Model(&slots).Exec(ctx); err != nil {
				return err
			}
		}
		out = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, domain.Persistence("start attempt", err)
	}
	return out, resumed, nil
}

func (s *Store) FindInProgress(ctx context.Context, userID, testDefinitionID string) (domain.Attempt, bool, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("test_definition_id = ?", testDefinitionID).
		Where("status = ?", string(domain.StatusInProgress)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, domain.Persistence("find in-progress attempt", err)
	}
	return row.domain(), true, nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	row, err := s.attempt(ctx, s.db, id, false)
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, userID string, testDefinitionIDs []string) ([]domain.Attempt, error) {
	if len(testDefinitionIDs) == 0 {
		return nil, nil
	}
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		Where("test_definition_id IN (?)", bun.In(testDefinitionIDs)).
		Order("started_at ASC", "attempt_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, domain.Persistence("list attempts", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) Responses(ctx context.Context, attemptID string) ([]domain.Response, error) {
	if _, err := s.attempt(ctx, s.db, attemptID, false); err != nil {
		return nil, err
	}
	rows, err := s.responses(ctx, s.db, attemptID)
	if err != nil {
		return nil, domain.Persistence("list responses", err)
	}
	out := make([]domain.Response, len(rows))
	for i, r := range rows {
		out[i] = r.domain()
	}
	return out, nil
}

func (s *Store) UpsertResponse(ctx context.Context, attemptID, questionID string, fn app.ResponseFunc) (domain.Response, error) {
	var out domain.Response
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		attempt, err := s.attempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}

		var slot responseRow
		err = tx.NewSelect().Model(&slot).
			Where("attempt_id = ?", attemptID).
			Where("question_id = ?", questionID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("question", questionID, domain.ErrQuestionNotFound)
		}
		if err != nil {
			return err
		}

		next, err := fn(attempt.domain(), slot.domain())
		if err != nil {
			return err
		}
		next.AttemptID = attemptID
		next.QuestionID = questionID
		next.Position = slot.Position
		next.MaxPoints = slot.MaxPoints

		row := newResponseRow(next)
		_, err = tx.NewInsert().Model(&row).
			On("CONFLICT (attempt_id, question_id) DO UPDATE").
			Set("user_answer = EXCLUDED.user_answer").
			Set("is_correct = EXCLUDED.is_correct").
			Set("points_earned = EXCLUDED.points_earned").
			Set("time_spent_seconds = EXCLUDED.time_spent_seconds").
			Set("answered_at = EXCLUDED.answered_at").
			Exec(ctx)
		if err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Response{}, domain.Persistence("record response", err)
	}
	return out, nil
}

func (s *Store) Transition(ctx context.Context, attemptID string, fn app.TransitionFunc) (domain.Attempt, error) {
	var out domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := s.attempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		slots, err := s.responses(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		responses := make([]domain.Response, len(slots))
		for i, r := range slots {
			responses[i] = r.domain()
		}

		next, err := fn(row.domain(), responses)
		if err != nil {
			return err
		}
		next.ID = row.ID
		if _, err := tx.NewUpdate().Model(newAttemptRow(next)).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return domain.Attempt{}, domain.Persistence("transition attempt", err)
	}
	return out, nil
}

func (s *Store) attempt(ctx context.Context, db bun.IDB, id string, lock bool) (attemptRow, error) {
	var row attemptRow
	q := db.NewSelect().Model(&row).Where("id = ?", id)
	if lock {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return attemptRow{}, domain.NotFound("attempt", id, domain.ErrAttemptNotFound)
	}
	if err != nil {
		return attemptRow{}, domain.Persistence("load attempt", err)
	}
	return row, nil
}

func (s *Store) responses(ctx context.Context, db bun.IDB, attemptID string) ([]responseRow, error) {
	var rows []responseRow
	err := db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("position ASC").
		Scan(ctx)
	return rows, err
}
