package domain

import "time"

// QuestionType selects how an answer is graded.
type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	MultiChoice  QuestionType = "multi_choice"
	TrueFalse    QuestionType = "true_false"
	FillBlank    QuestionType = "fill_blank"
	Essay        QuestionType = "essay"
)

// Option represents a possible answer for a choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a catalog entry. It must not change once an attempt references it.
type Question struct {
	ID             string       `json:"id"`
	CourseID       string       `json:"courseId"`
	Text           string       `json:"text"`
	Type           QuestionType `json:"type"`
	Options        []Option     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers,omitempty"`
	Points         int          `json:"points"` // defaults to 1 if zero
	Difficulty     string       `json:"difficulty,omitempty"`
	Category       string       `json:"category,omitempty"`
	Active         bool         `json:"active"`
}

// PointValue returns the configured points, never less than one.
func (q Question) PointValue() int {
	if q.Points < 1 {
		return 1
	}
	return q.Points
}

// Public strips the answer key so the question can be shown to a learner.
func (q Question) Public() Question {
	q.CorrectAnswers = nil
	return q
}

// TestKind distinguishes the three assessment flavours driven by the engine.
type TestKind string

const (
	LessonQuiz TestKind = "lesson_quiz"
	DailyTest  TestKind = "daily_test"
	Grandtest  TestKind = "grandtest"
)

// TestDefinition parameterizes an attempt.
type TestDefinition struct {
	ID                     string   `json:"id"`
	CourseID               string   `json:"courseId"`
	Kind                   TestKind `json:"kind"`
	Title                  string   `json:"title"`
	LessonID               string   `json:"lessonId,omitempty"`
	DayNumber              int      `json:"dayNumber,omitempty"`
	QuestionCount          int      `json:"questionCount"`
	TimeLimitMinutes       int      `json:"timeLimitMinutes,omitempty"` // 0 means untimed
	PassingScorePercentage float64  `json:"passingScorePercentage"`
	MaxAttempts            int      `json:"maxAttempts,omitempty"` // 0 means unlimited
	QuestionIDs            []string `json:"questionIds,omitempty"`
	Category               string   `json:"category,omitempty"`
	Active                 bool     `json:"active"`
}

// TimeLimit returns the configured limit as a duration.
func (d TestDefinition) TimeLimit() time.Duration {
	return time.Duration(d.TimeLimitMinutes) * time.Minute
}

// AttemptStatus tracks the attempt state machine.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	// StatusSubmitted marks an attempt finalized by the time limit.
	StatusSubmitted AttemptStatus = "submitted"
	StatusCompleted AttemptStatus = "completed"
	StatusAbandoned AttemptStatus = "abandoned"
)

// Terminal reports whether the status can no longer change.
func (s AttemptStatus) Terminal() bool {
	return s != StatusInProgress
}

// Scored reports whether the attempt went through finalize.
func (s AttemptStatus) Scored() bool {
	return s == StatusSubmitted || s == StatusCompleted
}

// Owner identifies who takes a test.
type Owner struct {
	UserID       string `json:"userId"`
	EnrollmentID string `json:"enrollmentId"`
}

// Attempt is one learner's run through a test definition.
type Attempt struct {
	ID                     string        `json:"id"`
	UserID                 string        `json:"userId"`
	EnrollmentID           string        `json:"enrollmentId"`
	CourseID               string        `json:"courseId"`
	TestDefinitionID       string        `json:"testDefinitionId"`
	Kind                   TestKind      `json:"kind"`
	DayNumber              int           `json:"dayNumber,omitempty"`
	AttemptNumber          int           `json:"attemptNumber"`
	Status                 AttemptStatus `json:"status"`
	StartedAt              time.Time     `json:"startedAt"`
	CompletedAt            *time.Time    `json:"completedAt,omitempty"`
	TimeLimitMinutes       int           `json:"timeLimitMinutes,omitempty"`
	PassingScorePercentage float64       `json:"passingScorePercentage"`
	TotalQuestions         int           `json:"totalQuestions"`
	Score                  int           `json:"score"`
	MaxScore               int           `json:"maxScore"`
	Percentage             float64       `json:"percentage"`
	Passed                 bool          `json:"passed"`
}

// Deadline returns when the attempt expires; ok is false for untimed attempts.
func (a Attempt) Deadline() (time.Time, bool) {
	if a.TimeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(a.TimeLimitMinutes) * time.Minute), true
}

// Remaining computes the time left at now. Untimed attempts report ok=false.
func (a Attempt) Remaining(now time.Time) (time.Duration, bool) {
	deadline, ok := a.Deadline()
	if !ok {
		return 0, false
	}
	left := deadline.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Expired reports whether a timed attempt has run out of time.
func (a Attempt) Expired(now time.Time) bool {
	deadline, ok := a.Deadline()
	return ok && !now.Before(deadline)
}

// Response is the stored answer for one question of an attempt.
// A placeholder with an empty answer is written for every question at start.
type Response struct {
	AttemptID        string     `json:"attemptId"`
	QuestionID       string     `json:"questionId"`
	Position         int        `json:"position"`
	MaxPoints        int        `json:"maxPoints"`
	UserAnswer       string     `json:"userAnswer"`
	IsCorrect        bool       `json:"isCorrect"`
	PointsEarned     int        `json:"pointsEarned"`
	TimeSpentSeconds int        `json:"timeSpentSeconds"`
	AnsweredAt       *time.Time `json:"answeredAt,omitempty"`
}

// Answered reports whether the learner has put anything in this slot.
func (r Response) Answered() bool {
	return r.UserAnswer != ""
}

// Review partitions an attempt's questions before submission.
type Review struct {
	AttemptID         string   `json:"attemptId"`
	Answered          []string `json:"answered"`
	SkippedUnanswered []string `json:"skippedUnanswered"`
	Unanswered        []string `json:"unanswered"`
	TotalQuestions    int      `json:"totalQuestions"`
}

// Lesson is a unit of course content tracked for completion.
type Lesson struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Active bool   `json:"active"`
}

// Module groups lessons and the lesson quizzes attached to them.
type Module struct {
	ID      string   `json:"id"`
	Lessons []Lesson `json:"lessons"`
	// QuizIDs reference lesson_quiz test definitions.
	QuizIDs []string `json:"quizIds"`
}

// CourseOutline is the content collaborator's view of a course.
type CourseOutline struct {
	CourseID string   `json:"courseId"`
	Modules  []Module `json:"modules"`
}

// CourseCompletionStatus is the cached completion snapshot for one enrollment.
type CourseCompletionStatus struct {
	UserID            string    `json:"userId"`
	CourseID          string    `json:"courseId"`
	EnrollmentID      string    `json:"enrollmentId"`
	LessonsCompleted  int       `json:"lessonsCompleted"`
	TotalLessons      int       `json:"totalLessons"`
	QuizzesCompleted  int       `json:"quizzesCompleted"`
	TotalQuizzes      int       `json:"totalQuizzes"`
	IsCourseCompleted bool      `json:"isCourseCompleted"`
	GrandtestEligible bool      `json:"grandtestEligible"`
	GrandtestPassed   bool      `json:"grandtestPassed"`
	CertificateIssued bool      `json:"certificateIssued"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Certificate is issued once per passing grandtest attempt.
type Certificate struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	CourseID           string    `json:"courseId"`
	EnrollmentID       string    `json:"enrollmentId"`
	GrandtestAttemptID string    `json:"grandtestAttemptId"`
	CertificateNumber  string    `json:"certificateNumber"`
	VerificationCode   string    `json:"-"`
	IssuedAt           time.Time `json:"issuedAt"`
	IsValid            bool      `json:"isValid"`
}

// Verification is the public result of a certificate lookup.
type Verification struct {
	Valid    bool       `json:"valid"`
	UserID   string     `json:"userId,omitempty"`
	CourseID string     `json:"courseId,omitempty"`
	IssuedAt *time.Time `json:"issuedAt,omitempty"`
}

// Eligibility answers whether a grandtest may be started.
type Eligibility struct {
	OK      bool         `json:"ok"`
	Reason  PolicyReason `json:"reason,omitempty"`
	RetryAt *time.Time   `json:"retryAt,omitempty"`
}
