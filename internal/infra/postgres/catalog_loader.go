package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assessment-engine/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads course content stored as JSONB documents.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

// LoadQuestions returns the course pool ordered by question id.
func (l *CatalogLoader) LoadQuestions(ctx context.Context, courseID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE course_id=$1 ORDER BY id`, courseID)
	if err != nil {
		return nil, domain.Persistence("load questions", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.Persistence("scan question", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("load questions", err)
	}
	if len(questions) == 0 {
		return nil, domain.NotFound("course", courseID, domain.ErrCourseNotFound)
	}
	return questions, nil
}

func (l *CatalogLoader) TestDefinition(ctx context.Context, id string) (domain.TestDefinition, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM test_definitions WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestDefinition{}, domain.NotFound("test definition", id, domain.ErrTestNotFound)
	}
	if err != nil {
		return domain.TestDefinition{}, domain.Persistence("load test definition", err)
	}
	var def domain.TestDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.TestDefinition{}, fmt.Errorf("unmarshal test definition: %w", err)
	}
	return def, nil
}

func (l *CatalogLoader) TestDefinitions(ctx context.Context, courseID string, kind domain.TestKind) ([]domain.TestDefinition, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT data FROM test_definitions WHERE course_id=$1 AND kind=$2 ORDER BY day_number, id`,
		courseID, string(kind))
	if err != nil {
		return nil, domain.Persistence("load test definitions", err)
	}
	defer rows.Close()

	var defs []domain.TestDefinition
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, domain.Persistence("scan test definition", err)
		}
		var def domain.TestDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("unmarshal test definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("load test definitions", err)
	}
	return defs, nil
}

func (l *CatalogLoader) CourseOutline(ctx context.Context, courseID string) (domain.CourseOutline, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM course_outlines WHERE course_id=$1`, courseID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CourseOutline{}, domain.NotFound("course", courseID, domain.ErrCourseNotFound)
	}
	if err != nil {
		return domain.CourseOutline{}, domain.Persistence("load course outline", err)
	}
	var outline domain.CourseOutline
	if err := json.Unmarshal(raw, &outline); err != nil {
		return domain.CourseOutline{}, fmt.Errorf("unmarshal course outline: %w", err)
	}
	return outline, nil
}
