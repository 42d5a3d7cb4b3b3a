// Package users provides a PostgreSQL-backed repository for the
// email-identified principals of the authentication engine.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/dbx"
	"github.com/passlink/passlink/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate inserts the user or, on email conflict, returns the existing
// row. The no-op DO UPDATE makes RETURNING yield the row in both cases, so
// provisioning is idempotent and race-free without a prior SELECT.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, email string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = excluded.email
		RETURNING id, email, created_at, locked_until
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, uuid.NewString(), foldEmail(email)).
		Scan(&user.ID, &user.Email, &user.CreatedAt, &user.LockedUntil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, email, created_at, locked_until FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, created_at, locked_until FROM users
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, foldEmail(email)))
}

func (r *PostgresRepository) LockUntil(ctx context.Context, email string, until *time.Time) error {
	query := `
		UPDATE users SET locked_until = $2
		WHERE email = $1
	`
	if _, err := r.db.ExecContext(ctx, query, foldEmail(email), until); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.CreatedAt, &user.LockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return user, nil
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
