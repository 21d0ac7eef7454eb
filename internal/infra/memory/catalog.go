package memory

import (
	"context"
	"sort"
	"sync"

	"assessment-engine/internal/domain"
)

// StaticCatalog is a content collaborator backed by in-memory maps (useful for tests/demos).
// It serves question pools, test definitions and course outlines.
type StaticCatalog struct {
	mu        sync.RWMutex
	questions map[string][]domain.Question
	tests     map[string]domain.TestDefinition
	outlines  map[string]domain.CourseOutline
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		questions: make(map[string][]domain.Question),
		tests:     make(map[string]domain.TestDefinition),
		outlines:  make(map[string]domain.CourseOutline),
	}
}

// AddQuestions appends questions to their course pools.
func (c *StaticCatalog) AddQuestions(questions ...domain.Question) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range questions {
		c.questions[q.CourseID] = append(c.questions[q.CourseID], q)
	}
	return c
}

// AddTests registers test definitions.
func (c *StaticCatalog) AddTests(defs ...domain.TestDefinition) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range defs {
		c.tests[d.ID] = d
	}
	return c
}

// SetOutline replaces a course outline.
func (c *StaticCatalog) SetOutline(outline domain.CourseOutline) *StaticCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outlines[outline.CourseID] = outline
	return c
}

func (c *StaticCatalog) LoadQuestions(_ context.Context, courseID string) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pool, ok := c.questions[courseID]
	if !ok {
		return nil, domain.NotFound("course", courseID, domain.ErrCourseNotFound)
	}
	return append([]domain.Question(nil), pool...), nil
}

func (c *StaticCatalog) TestDefinition(_ context.Context, id string) (domain.TestDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.tests[id]
	if !ok {
		return domain.TestDefinition{}, domain.NotFound("test definition", id, domain.ErrTestNotFound)
	}
	return def, nil
}

// TestDefinitions lists a course's definitions of one kind, daily tests ordered by day.
func (c *StaticCatalog) TestDefinitions(_ context.Context, courseID string, kind domain.TestKind) ([]domain.TestDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.TestDefinition
	for _, def := range c.tests {
		if def.CourseID == courseID && def.Kind == kind {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayNumber != out[j].DayNumber {
			return out[i].DayNumber < out[j].DayNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *StaticCatalog) CourseOutline(_ context.Context, courseID string) (domain.CourseOutline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	outline, ok := c.outlines[courseID]
	if !ok {
		return domain.CourseOutline{}, domain.NotFound("course", courseID, domain.ErrCourseNotFound)
	}
	return outline, nil
}
