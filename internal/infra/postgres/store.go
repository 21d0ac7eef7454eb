package postgres

import (
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

// Store persists attempts, progress and certificates through bun.
type Store struct {
	db *bun.DB
}

// Open connects a bun handle over pgdriver.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for migrations.
func (s *Store) DB() *bun.DB { return s.db }

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
