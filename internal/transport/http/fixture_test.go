package http

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
)

type testClock struct {
	mu     sync.Mutex
	now    time.Time
	anchor time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.anchor.IsZero() {
		return c.now
	}
	return c.now.Add(time.Since(c.anchor))
}

// Follow makes the clock tick with wall time from its current reading.
func (c *testClock) Follow() {
	c.mu.Lock()
	c.anchor = time.Now()
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	server   *httptest.Server
	services *app.Services
	clock    *testClock
}

func newFixture(t *testing.T, opts ...APIOption) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	catalog := memory.NewStaticCatalog().
		AddQuestions(
			choice("q1", "2 + 2?", "o2"),
			choice("q2", "3 + 3?", "o3"),
			choice("q3", "1 + 1?", "o1"),
		).
		AddTests(domain.TestDefinition{
			ID:                     "quiz-1",
			CourseID:               "course-1",
			Kind:                   domain.LessonQuiz,
			Title:                  "Arithmetic",
			LessonID:               "l1",
			QuestionCount:          3,
			PassingScorePercentage: 60,
			QuestionIDs:            []string{"q1", "q2", "q3"},
			Active:                 true,
		}, domain.TestDefinition{
			ID:                     "timed-1",
			CourseID:               "course-1",
			Kind:                   domain.LessonQuiz,
			Title:                  "Speed round",
			QuestionCount:          2,
			PassingScorePercentage: 50,
			TimeLimitMinutes:       1,
			QuestionIDs:            []string{"q1", "q2"},
			Active:                 true,
		}, domain.TestDefinition{
			ID:                     "final-1",
			CourseID:               "course-1",
			Kind:                   domain.Grandtest,
			Title:                  "Final",
			QuestionCount:          3,
			PassingScorePercentage: 60,
			MaxAttempts:            3,
			QuestionIDs:            []string{"q1", "q2", "q3"},
			Active:                 true,
		}).
		SetOutline(domain.CourseOutline{
			CourseID: "course-1",
			Modules: []domain.Module{{
				ID:      "m1",
				Lessons: []domain.Lesson{{ID: "l1", Active: true}},
				QuizIDs: []string{"quiz-1"},
			}},
		})

	progress := memory.NewProgressStore()
	services := app.NewServices(app.Stores{
		Catalog:      catalog,
		Questions:    memory.NewQuestionBank(catalog, time.Minute),
		Attempts:     memory.NewAttemptStore(),
		Lessons:      progress,
		Completions:  progress,
		Certificates: memory.NewCertificateStore(),
	}, app.Settings{
		DailyPassThreshold: app.DefaultDailyPassThreshold,
		GrandtestCooldown:  app.DefaultGrandtestCooldown,
		EssayMinLength:     app.DefaultEssayMinLength,
	}, app.WithClock(clock.Now))

	mux := http.NewServeMux()
	NewAPI(services, opts...).Register(mux)
	mux.HandleFunc("/ws/attempts", NewWSHandler(services.Engine, memory.NewSessionStore(), nil).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &fixture{server: server, services: services, clock: clock}
}

func choice(id, text, correct string) domain.Question {
	return domain.Question{
		ID:       id,
		CourseID: "course-1",
		Text:     text,
		Type:     domain.SingleChoice,
		Options: []domain.Option{
			{ID: "o1", Text: "2"},
			{ID: "o2", Text: "4"},
			{ID: "o3", Text: "6"},
		},
		CorrectAnswers: []string{correct},
		Points:         1,
		Active:         true,
	}
}
