// Package pg persists the moderation records in Postgres. Plain SQL via
// database/sql with the pgx driver; the single-active-assignment and
// single-resolution guarantees live in the statements themselves, not in
// application locks.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/snailscoop/modauthority/internal/moderation"
)

// Store bundles the moderation sub-stores over one connection pool.
type Store struct {
	db *sql.DB
}

var _ moderation.Store = (*Store)(nil)

// Open connects to Postgres.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for readiness probes and the migration runner.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Assignments() moderation.AssignmentStore { return &assignmentStore{db: s.db} }
func (s *Store) Actions() moderation.ActionStore         { return &actionStore{db: s.db} }
func (s *Store) Appeals() moderation.AppealStore         { return &appealStore{db: s.db} }
func (s *Store) Flags() moderation.FlagStore             { return &flagStore{db: s.db} }
