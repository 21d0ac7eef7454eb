package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assessment-engine/internal/domain"
)

func planOne(id string, questions ...string) func([]domain.Attempt) (domain.Attempt, []domain.Response, error) {
	return func(prior []domain.Attempt) (domain.Attempt, []domain.Response, error) {
		a := domain.Attempt{
			ID:               id,
			UserID:           "u1",
			TestDefinitionID: "t1",
			AttemptNumber:    len(prior) + 1,
			Status:           domain.StatusInProgress,
			StartedAt:        time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			TotalQuestions:   len(questions),
		}
		responses := make([]domain.Response, 0, len(questions))
		for i, q := range questions {
			responses = append(responses, domain.Response{AttemptID: id, QuestionID: q, Position: len(questions) - 1 - i, MaxPoints: 1})
		}
		return a, responses, nil
	}
}

func TestAttemptStoreStartResumesInProgress(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	first, resumed, err := store.StartAttempt(ctx, "u1", "t1", planOne("a1", "q1"))
	if err != nil || resumed {
		t.Fatalf("start: resumed=%v err=%v", resumed, err)
	}
	second, resumed, err := store.StartAttempt(ctx, "u1", "t1", planOne("a2", "q1"))
	if err != nil {
		t.Fatalf("start again: %v", err)
	}
	if !resumed || second.ID != first.ID {
		t.Fatalf("expected resume of %s, got %s resumed=%v", first.ID, second.ID, resumed)
	}
}

func TestAttemptStoreConcurrentStartCreatesOne(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, _, err := store.StartAttempt(ctx, "u1", "t1", planOne("a"+string(rune('0'+i)), "q1"))
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single in-progress attempt, got %v", ids)
		}
	}
}

func TestAttemptStoreResponsesAndTransition(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	if _, _, err := store.StartAttempt(ctx, "u1", "t1", planOne("a1", "q1", "q2")); err != nil {
		t.Fatalf("start: %v", err)
	}

	responses, err := store.Responses(ctx, "a1")
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 2 || responses[0].QuestionID != "q2" {
		t.Fatalf("expected responses ordered by position, got %+v", responses)
	}

	saved, err := store.UpsertResponse(ctx, "a1", "q1", func(_ domain.Attempt, cur domain.Response) (domain.Response, error) {
		cur.UserAnswer = "o2"
		cur.IsCorrect = true
		cur.PointsEarned = cur.MaxPoints
		cur.Position = 99
		return cur, nil
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.Position != 1 || saved.PointsEarned != 1 {
		t.Fatalf("slot position must be kept, got %+v", saved)
	}

	if _, err := store.UpsertResponse(ctx, "a1", "q9", func(_ domain.Attempt, cur domain.Response) (domain.Response, error) {
		return cur, nil
	}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	done, err := store.Transition(ctx, "a1", func(a domain.Attempt, rs []domain.Response) (domain.Attempt, error) {
		for _, r := range rs {
			a.Score += r.PointsEarned
		}
		a.Status = domain.StatusCompleted
		return a, nil
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if done.Score != 1 || done.Status != domain.StatusCompleted {
		t.Fatalf("unexpected attempt %+v", done)
	}
	if _, found, _ := store.FindInProgress(ctx, "u1", "t1"); found {
		t.Fatalf("completed attempt must not be in progress")
	}

	next, resumed, err := store.StartAttempt(ctx, "u1", "t1", planOne("a2", "q1"))
	if err != nil || resumed {
		t.Fatalf("start after completion: resumed=%v err=%v", resumed, err)
	}
	if next.AttemptNumber != 2 {
		t.Fatalf("expected attempt number 2, got %d", next.AttemptNumber)
	}
	list, _ := store.ListAttempts(ctx, "u1", []string{"t1"})
	if len(list) != 2 {
		t.Fatalf("expected two attempts, got %d", len(list))
	}
}

func TestAttemptStoreTransitionErrorLeavesAttempt(t *testing.T) {
	store := NewAttemptStore()
	ctx := context.Background()
	if _, _, err := store.StartAttempt(ctx, "u1", "t1", planOne("a1", "q1")); err != nil {
		t.Fatalf("start: %v", err)
	}
	boom := errors.New("boom")
	if _, err := store.Transition(ctx, "a1", func(domain.Attempt, []domain.Response) (domain.Attempt, error) {
		return domain.Attempt{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	a, err := store.GetAttempt(ctx, "a1")
	if err != nil || a.Status != domain.StatusInProgress {
		t.Fatalf("attempt must be untouched, got %+v err=%v", a, err)
	}
	if _, err := store.GetAttempt(ctx, "missing"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}
