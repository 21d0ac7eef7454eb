package postgres

import (
	"time"

	"assessment-engine/internal/domain"
	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID                     string     `bun:"id,pk"`
	UserID                 string     `bun:"user_id"`
	EnrollmentID           string     `bun:"enrollment_id"`
	CourseID               string     `bun:"course_id"`
	TestDefinitionID       string     `bun:"test_definition_id"`
	Kind                   string     `bun:"kind"`
	DayNumber              int        `bun:"day_number"`
	AttemptNumber          int        `bun:"attempt_number"`
	Status                 string     `bun:"status"`
	StartedAt              time.Time  `bun:"started_at"`
	CompletedAt            *time.Time `bun:"completed_at"`
	TimeLimitMinutes       int        `bun:"time_limit_minutes"`
	PassingScorePercentage float64    `bun:"passing_score_percentage"`
	TotalQuestions         int        `bun:"total_questions"`
	Score                  int        `bun:"score"`
	MaxScore               int        `bun:"max_score"`
	Percentage             float64    `bun:"percentage"`
	Passed                 bool       `bun:"passed"`
}

func newAttemptRow(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:                     a.ID,
		UserID:                 a.UserID,
		EnrollmentID:           a.EnrollmentID,
		CourseID:               a.CourseID,
		TestDefinitionID:       a.TestDefinitionID,
		Kind:                   string(a.Kind),
		DayNumber:              a.DayNumber,
		AttemptNumber:          a.AttemptNumber,
		Status:                 string(a.Status),
		StartedAt:              a.StartedAt,
		CompletedAt:            a.CompletedAt,
		TimeLimitMinutes:       a.TimeLimitMinutes,
		PassingScorePercentage: a.PassingScorePercentage,
		TotalQuestions:         a.TotalQuestions,
		Score:                  a.Score,
		MaxScore:               a.MaxScore,
		Percentage:             a.Percentage,
		Passed:                 a.Passed,
	}
}

func (r attemptRow) domain() domain.Attempt {
	return domain.Attempt{
		ID:                     r.ID,
		UserID:                 r.UserID,
		EnrollmentID:           r.EnrollmentID,
		CourseID:               r.CourseID,
		TestDefinitionID:       r.TestDefinitionID,
		Kind:                   domain.TestKind(r.Kind),
		DayNumber:              r.DayNumber,
		AttemptNumber:          r.AttemptNumber,
		Status:                 domain.AttemptStatus(r.Status),
		StartedAt:              r.StartedAt.UTC(),
		CompletedAt:            utcPtr(r.CompletedAt),
		TimeLimitMinutes:       r.TimeLimitMinutes,
		PassingScorePercentage: r.PassingScorePercentage,
		TotalQuestions:         r.TotalQuestions,
		Score:                  r.Score,
		MaxScore:               r.MaxScore,
		Percentage:             r.Percentage,
		Passed:                 r.Passed,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:responses,alias:r"`

	AttemptID        string     `bun:"attempt_id,pk"`
	QuestionID       string     `bun:"question_id,pk"`
	Position         int        `bun:"position"`
	MaxPoints        int        `bun:"max_points"`
	UserAnswer       string     `bun:"user_answer"`
	IsCorrect        bool       `bun:"is_correct"`
	PointsEarned     int        `bun:"points_earned"`
	TimeSpentSeconds int        `bun:"time_spent_seconds"`
	AnsweredAt       *time.Time `bun:"answered_at"`
}

func newResponseRow(r domain.Response) responseRow {
	return responseRow{
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		Position:         r.Position,
		MaxPoints:        r.MaxPoints,
		UserAnswer:       r.UserAnswer,
		IsCorrect:        r.IsCorrect,
		PointsEarned:     r.PointsEarned,
		TimeSpentSeconds: r.TimeSpentSeconds,
		AnsweredAt:       r.AnsweredAt,
	}
}

func (r responseRow) domain() domain.Response {
	return domain.Response{
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		Position:         r.Position,
		MaxPoints:        r.MaxPoints,
		UserAnswer:       r.UserAnswer,
		IsCorrect:        r.IsCorrect,
		PointsEarned:     r.PointsEarned,
		TimeSpentSeconds: r.TimeSpentSeconds,
		AnsweredAt:       utcPtr(r.AnsweredAt),
	}
}

type lessonProgressRow struct {
	bun.BaseModel `bun:"table:lesson_progress,alias:lp"`

	UserID      string    `bun:"user_id,pk"`
	CourseID    string    `bun:"course_id,pk"`
	LessonID    string    `bun:"lesson_id,pk"`
	CompletedAt time.Time `bun:"completed_at"`
}

type completionRow struct {
	bun.BaseModel `bun:"table:course_completions,alias:cc"`

	UserID            string    `bun:"user_id,pk"`
	CourseID          string    `bun:"course_id,pk"`
	EnrollmentID      string    `bun:"enrollment_id,pk"`
	LessonsCompleted  int       `bun:"lessons_completed"`
	TotalLessons      int       `bun:"total_lessons"`
	QuizzesCompleted  int       `bun:"quizzes_completed"`
	TotalQuizzes      int       `bun:"total_quizzes"`
	IsCourseCompleted bool      `bun:"is_course_completed"`
	GrandtestEligible bool      `bun:"grandtest_eligible"`
	GrandtestPassed   bool      `bun:"grandtest_passed"`
	CertificateIssued bool      `bun:"certificate_issued"`
	LastUpdated       time.Time `bun:"last_updated"`
}

func (r completionRow) domain() domain.CourseCompletionStatus {
	return domain.CourseCompletionStatus{
		UserID:            r.UserID,
		CourseID:          r.CourseID,
		EnrollmentID:      r.EnrollmentID,
		LessonsCompleted:  r.LessonsCompleted,
		TotalLessons:      r.TotalLessons,
		QuizzesCompleted:  r.QuizzesCompleted,
		TotalQuizzes:      r.TotalQuizzes,
		IsCourseCompleted: r.IsCourseCompleted,
		GrandtestEligible: r.GrandtestEligible,
		GrandtestPassed:   r.GrandtestPassed,
		CertificateIssued: r.CertificateIssued,
		LastUpdated:       r.LastUpdated.UTC(),
	}
}

type certificateRow struct {
	bun.BaseModel `bun:"table:certificates,alias:c"`

	ID                 string    `bun:"id,pk"`
	UserID             string    `bun:"user_id"`
	CourseID           string    `bun:"course_id"`
	EnrollmentID       string    `bun:"enrollment_id"`
	GrandtestAttemptID string    `bun:"grandtest_attempt_id"`
	CertificateNumber  string    `bun:"certificate_number"`
	VerificationCode   string    `bun:"verification_code"`
	IssuedAt           time.Time `bun:"issued_at"`
	IsValid            bool      `bun:"is_valid"`
}

func (r certificateRow) domain() domain.Certificate {
	return domain.Certificate{
		ID:                 r.ID,
		UserID:             r.UserID,
		CourseID:           r.CourseID,
		EnrollmentID:       r.EnrollmentID,
		GrandtestAttemptID: r.GrandtestAttemptID,
		CertificateNumber:  r.CertificateNumber,
		VerificationCode:   r.VerificationCode,
		IssuedAt:           r.IssuedAt.UTC(),
		IsValid:            r.IsValid,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
