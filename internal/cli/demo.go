package cli

import (
	"fmt"

	"assessment-engine/internal/domain"
	"assessment-engine/internal/infra/memory"
)

const demoCourse = "course-demo"

// demoCatalog provides a small course for in-memory mode; Postgres deployments load content from JSONB tables.
func demoCatalog() *memory.StaticCatalog {
	catalog := memory.NewStaticCatalog()

	for i := 1; i <= 12; i++ {
		a, b := i, i+1
		catalog.AddQuestions(domain.Question{
			ID:       fmt.Sprintf("q%d", i),
			CourseID: demoCourse,
			Text:     fmt.Sprintf("What is %d + %d?", a, b),
			Type:     domain.SingleChoice,
			Options: []domain.Option{
				{ID: "o1", Text: fmt.Sprint(a + b - 1)},
				{ID: "o2", Text: fmt.Sprint(a + b)},
				{ID: "o3", Text: fmt.Sprint(a + b + 1)},
			},
			CorrectAnswers: []string{"o2"},
			Points:         1,
			Category:       "arithmetic",
			Active:         true,
		})
	}
	catalog.AddQuestions(
		domain.Question{ID: "tf1", CourseID: demoCourse, Text: "Addition is commutative.", Type: domain.TrueFalse, CorrectAnswers: []string{"true"}, Points: 1, Active: true},
		domain.Question{ID: "essay1", CourseID: demoCourse, Text: "Explain why 0 is the additive identity.", Type: domain.Essay, Points: 2, Active: true},
	)

	catalog.AddTests(
		domain.TestDefinition{ID: "demo-quiz-1", CourseID: demoCourse, Kind: domain.LessonQuiz, Title: "Lesson 1 quiz", LessonID: "lesson-1", QuestionCount: 3, PassingScorePercentage: 70, QuestionIDs: []string{"q1", "q2", "tf1"}, Active: true},
		domain.TestDefinition{ID: "demo-day-1", CourseID: demoCourse, Kind: domain.DailyTest, Title: "Day 1", DayNumber: 1, QuestionCount: 5, TimeLimitMinutes: 15, PassingScorePercentage: 90, Category: "arithmetic", Active: true},
		domain.TestDefinition{ID: "demo-day-2", CourseID: demoCourse, Kind: domain.DailyTest, Title: "Day 2", DayNumber: 2, QuestionCount: 5, TimeLimitMinutes: 15, PassingScorePercentage: 90, Category: "arithmetic", Active: true},
		domain.TestDefinition{ID: "demo-grandtest", CourseID: demoCourse, Kind: domain.Grandtest, Title: "Final exam", QuestionCount: 10, TimeLimitMinutes: 60, PassingScorePercentage: 80, MaxAttempts: 3, Active: true},
	)

	catalog.SetOutline(domain.CourseOutline{
		CourseID: demoCourse,
		Modules: []domain.Module{{
			ID:      "module-1",
			Lessons: []domain.Lesson{{ID: "lesson-1", Title: "Adding numbers", Active: true}},
			QuizIDs: []string{"demo-quiz-1"},
		}},
	})
	return catalog
}
