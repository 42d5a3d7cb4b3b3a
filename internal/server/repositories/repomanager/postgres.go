// Package repomanager provides the concrete identity store for
// PostgreSQL, wiring repository constructors, scoped transactions, and
// database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/passlink/passlink/internal/dbx"
	"github.com/passlink/passlink/internal/server/migrations"
	"github.com/passlink/passlink/internal/server/repositories/auditlog"
	"github.com/passlink/passlink/internal/server/repositories/captchas"
	"github.com/passlink/passlink/internal/server/repositories/csrftokens"
	"github.com/passlink/passlink/internal/server/repositories/lockouts"
	"github.com/passlink/passlink/internal/server/repositories/ratelimits"
	"github.com/passlink/passlink/internal/server/repositories/sessions"
	"github.com/passlink/passlink/internal/server/repositories/tokens"
	"github.com/passlink/passlink/internal/server/repositories/users"
)

// PostgresStore vends PostgreSQL-backed repository implementations over a
// shared *sql.DB (pgx stdlib driver).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a pgx-backed database handle for the DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle (used by tests).
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Handle() dbx.DBTX { return s.db }

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, nil, fn)
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (s *PostgresStore) Tokens(db dbx.DBTX) tokens.Repository {
	return tokens.NewPostgresRepository(db)
}

func (s *PostgresStore) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (s *PostgresStore) RateLimits(db dbx.DBTX) ratelimits.Repository {
	return ratelimits.NewPostgresRepository(db)
}

func (s *PostgresStore) Lockouts(db dbx.DBTX) lockouts.Repository {
	return lockouts.NewPostgresRepository(db)
}

func (s *PostgresStore) Captchas(db dbx.DBTX) captchas.Repository {
	return captchas.NewPostgresRepository(db)
}

func (s *PostgresStore) Audit(db dbx.DBTX) auditlog.Repository {
	return auditlog.NewPostgresRepository(db)
}

func (s *PostgresStore) CsrfTokens(db dbx.DBTX) csrftokens.Repository {
	return csrftokens.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing RunMigrations.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the store's database handle.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, s.db, ".")
}
