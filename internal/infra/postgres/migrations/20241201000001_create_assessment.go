package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_assessment.sql
var createAssessmentSQL string

// Migrations is the ordered set applied by the migrate command and at server start.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createAssessmentSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS certificates, course_completions, lesson_progress, responses, attempts, course_outlines, test_definitions, questions`)
			return err
		},
	)
}
