package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionBankCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{QuestionLoader: memory.NewStaticCatalog().AddQuestions(sampleQuestions()...)}
	bank := NewQuestionBank(client, loader, time.Minute)

	questions, err := bank.GetQuestions(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.count())
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	if !mr.Exists("course:course-1:questions") {
		t.Fatalf("expected pool hash in redis")
	}
	if ttl := mr.TTL("course:course-1:questions"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	again, err := bank.GetQuestions(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.count())
	}
	for i := range questions {
		if again[i].ID != questions[i].ID {
			t.Fatalf("cached order changed: %v vs %v", again[i].ID, questions[i].ID)
		}
	}

	q, err := bank.GetQuestion(context.Background(), "course-1", "q2")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if len(q.CorrectAnswers) != 2 || q.Type != domain.MultiChoice {
		t.Fatalf("expected full question from cache, got %+v", q)
	}
}

func TestQuestionBankMissingQuestion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bank := NewQuestionBank(newClient(mr), memory.NewStaticCatalog().AddQuestions(sampleQuestions()...), time.Minute)
	if _, err := bank.GetQuestion(context.Background(), "course-1", "nope"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}

	if err := bank.Invalidate(context.Background(), "course-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("course:course-1:questions") {
		t.Fatalf("expected pool hash removed")
	}
}

type countingLoader struct {
	QuestionLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuestionLoader.LoadQuestions(ctx, courseID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", CourseID: "course-1", Text: "2 + 2?", Type: domain.SingleChoice, Options: []domain.Option{{ID: "o1", Text: "3"}, {ID: "o2", Text: "4"}}, CorrectAnswers: []string{"o2"}, Points: 1, Active: true},
		{ID: "q2", CourseID: "course-1", Text: "Pick the fruits", Type: domain.MultiChoice, Options: []domain.Option{{ID: "a", Text: "apple"}, {ID: "b", Text: "brick"}, {ID: "c", Text: "cherry"}}, CorrectAnswers: []string{"a", "c"}, Points: 2, Active: true},
		{ID: "q3", CourseID: "course-1", Text: "The sky is blue", Type: domain.TrueFalse, CorrectAnswers: []string{"true"}, Active: true},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
