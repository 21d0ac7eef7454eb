package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
)

const course = "course-1"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	*app.Services
	catalog  *memory.StaticCatalog
	attempts *memory.AttemptStore
	progress *memory.ProgressStore
	certs    *memory.CertificateStore
	clock    *clock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}

	catalog := memory.NewStaticCatalog()
	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		catalog.AddQuestions(question(id))
	}
	catalog.AddTests(
		domain.TestDefinition{ID: "quiz-1", CourseID: course, Kind: domain.LessonQuiz, LessonID: "l1", QuestionCount: 2, PassingScorePercentage: 50, MaxAttempts: 2, QuestionIDs: []string{"g1", "g2"}, Active: true},
		domain.TestDefinition{ID: "day-1", CourseID: course, Kind: domain.DailyTest, DayNumber: 1, QuestionCount: 2, TimeLimitMinutes: 15, PassingScorePercentage: 90, QuestionIDs: []string{"g1", "g2"}, Active: true},
		domain.TestDefinition{ID: "day-2", CourseID: course, Kind: domain.DailyTest, DayNumber: 2, QuestionCount: 2, TimeLimitMinutes: 15, PassingScorePercentage: 90, QuestionIDs: []string{"g3", "g4"}, Active: true},
		domain.TestDefinition{ID: "final", CourseID: course, Kind: domain.Grandtest, QuestionCount: 5, TimeLimitMinutes: 60, PassingScorePercentage: 80, MaxAttempts: 3, QuestionIDs: []string{"g1", "g2", "g3", "g4", "g5"}, Active: true},
		domain.TestDefinition{ID: "random", CourseID: course, Kind: domain.LessonQuiz, QuestionCount: 3, PassingScorePercentage: 50, Active: true},
		domain.TestDefinition{ID: "too-big", CourseID: course, Kind: domain.LessonQuiz, QuestionCount: 10, PassingScorePercentage: 50, Active: true},
		domain.TestDefinition{ID: "retired", CourseID: course, Kind: domain.LessonQuiz, QuestionCount: 1, PassingScorePercentage: 50, Active: false},
	)
	catalog.SetOutline(domain.CourseOutline{
		CourseID: course,
		Modules: []domain.Module{{
			ID:      "m1",
			Lessons: []domain.Lesson{{ID: "l1", Active: true}, {ID: "l2", Active: true}},
			QuizIDs: []string{"quiz-1"},
		}},
	})

	attempts := memory.NewAttemptStore()
	progress := memory.NewProgressStore()
	certs := memory.NewCertificateStore()
	services := app.NewServices(app.Stores{
		Catalog:      catalog,
		Questions:    memory.NewQuestionBank(catalog, time.Minute),
		Attempts:     attempts,
		Lessons:      progress,
		Completions:  progress,
		Certificates: certs,
	}, app.Settings{
		DailyPassThreshold: app.DefaultDailyPassThreshold,
		GrandtestCooldown:  app.DefaultGrandtestCooldown,
		EssayMinLength:     app.DefaultEssayMinLength,
	}, app.WithClock(c.Now))

	return &env{Services: services, catalog: catalog, attempts: attempts, progress: progress, certs: certs, clock: c}
}

func question(id string) domain.Question {
	return domain.Question{
		ID:             id,
		CourseID:       course,
		Text:           "pick the right one",
		Type:           domain.SingleChoice,
		Options:        []domain.Option{{ID: "o1", Text: "wrong"}, {ID: "o2", Text: "right"}},
		CorrectAnswers: []string{"o2"},
		Points:         1,
		Active:         true,
	}
}

var owner = domain.Owner{UserID: "u1", EnrollmentID: "e1"}

// take starts testID and answers every question, the first `correct` of them correctly.
func (e *env) take(t *testing.T, testID string, correct int) domain.Attempt {
	t.Helper()
	ctx := context.Background()
	attempt, err := e.Engine.StartAttempt(ctx, owner, testID)
	if err != nil {
		t.Fatalf("start %s: %v", testID, err)
	}
	questions, err := e.Engine.AttemptQuestions(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	for i, q := range questions {
		answer := "o1"
		if i < correct {
			answer = "o2"
		}
		if _, err := e.Engine.RecordAnswer(ctx, attempt.ID, q.Question.ID, answer, 10); err != nil {
			t.Fatalf("answer %s: %v", q.Question.ID, err)
		}
	}
	final, err := e.Engine.Finalize(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("finalize %s: %v", testID, err)
	}
	return final
}

// completeCourse finishes every lesson and passes quiz-1.
func (e *env) completeCourse(t *testing.T) {
	t.Helper()
	e.take(t, "quiz-1", 2)
	for _, lesson := range []string{"l1", "l2"} {
		if _, err := e.Completion.MarkLessonCompleted(context.Background(), owner.UserID, course, owner.EnrollmentID, lesson); err != nil {
			t.Fatalf("complete %s: %v", lesson, err)
		}
	}
}
