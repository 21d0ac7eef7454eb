package cli

import (
	"context"
	"fmt"

	"assessment-engine/internal/config"
	"assessment-engine/internal/infra/postgres"
	pgmigrations "assessment-engine/internal/infra/postgres/migrations"
	"assessment-engine/internal/logger"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log := logger.New(cfg.Log.Mode, cfg.Log.File)
			defer func() { _ = log.Sync() }()

			db := postgres.Open(cfg.Postgres.URL)
			defer db.Close()
			return runMigrations(cmd.Context(), db, log)
		},
	}
}

func runMigrations(ctx context.Context, db *bun.DB, log *zap.Logger) error {
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations")
		return nil
	}
	log.Info("migrations applied", zap.String("group", group.String()))
	return nil
}
