package app

import (
	"strings"
	"unicode/utf8"

	"assessment-engine/internal/domain"
)

// DefaultEssayMinLength is the number of characters an essay must exceed to be accepted.
const DefaultEssayMinLength = 10

// Grader decides whether an answer is correct for a question.
type Grader interface {
	Grade(q domain.Question, answer string) bool
}

// GraderFunc adapts a function to Grader.
type GraderFunc func(q domain.Question, answer string) bool

func (f GraderFunc) Grade(q domain.Question, answer string) bool { return f(q, answer) }

// Graders maps question types to grading strategies. Unknown types use exact matching.
type Graders map[domain.QuestionType]Grader

// DefaultGraders returns the stock strategies.
func DefaultGraders(essayMinLength int) Graders {
	if essayMinLength <= 0 {
		essayMinLength = DefaultEssayMinLength
	}
	return Graders{
		domain.SingleChoice: GraderFunc(exactMatch),
		domain.TrueFalse:    GraderFunc(exactMatch),
		domain.FillBlank:    GraderFunc(exactMatch),
		domain.MultiChoice:  GraderFunc(setMatch),
		domain.Essay:        EssayLength{MinLength: essayMinLength},
	}
}

// Grade dispatches to the strategy for q.Type.
func (g Graders) Grade(q domain.Question, answer string) bool {
	if grader, ok := g[q.Type]; ok {
		return grader.Grade(q, answer)
	}
	return exactMatch(q, answer)
}

// EssayLength accepts any essay longer than MinLength characters. It does not grade content.
type EssayLength struct {
	MinLength int
}

func (e EssayLength) Grade(_ domain.Question, answer string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(answer)) > e.MinLength
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// exactMatch compares case-insensitively against every accepted answer. A correct answer
// that names an option id also accepts that option's text, and vice versa.
func exactMatch(q domain.Question, answer string) bool {
	got := canonical(q, answer)
	if got == "" {
		return false
	}
	for _, want := range q.CorrectAnswers {
		if canonical(q, want) == got {
			return true
		}
	}
	return false
}

// setMatch treats the answer as a comma separated selection and requires the exact set.
func setMatch(q domain.Question, answer string) bool {
	got := selection(q, answer)
	if len(got) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(q.CorrectAnswers))
	for _, c := range q.CorrectAnswers {
		if key := canonical(q, c); key != "" {
			want[key] = struct{}{}
		}
	}
	if len(got) != len(want) {
		return false
	}
	for key := range got {
		if _, ok := want[key]; !ok {
			return false
		}
	}
	return true
}

func selection(q domain.Question, answer string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(answer, ",") {
		if key := canonical(q, part); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

// canonical maps an option id or option text to the normalized option id; other values are
// returned normalized.
func canonical(q domain.Question, value string) string {
	v := normalize(value)
	if v == "" {
		return ""
	}
	for _, opt := range q.Options {
		if normalize(opt.ID) == v || normalize(opt.Text) == v {
			return "opt:" + normalize(opt.ID)
		}
	}
	return v
}
