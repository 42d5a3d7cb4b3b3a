// Package lockouts provides a PostgreSQL-backed repository for derived
// account and IP lockout state.
package lockouts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

// Extend upserts with GREATEST so locked_until is monotonically
// non-decreasing while the subject stays locked.
func (r *PostgresRepository) Extend(ctx context.Context, subject string, lockedUntil time.Time, reason string) (*models.Lockout, error) {
	query := `
		INSERT INTO lockouts (subject, locked_until, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject) DO UPDATE SET
			locked_until = GREATEST(lockouts.locked_until, excluded.locked_until),
			reason = excluded.reason
		RETURNING subject, locked_until, reason
	`
	lockout := &models.Lockout{}
	err := r.db.QueryRowContext(ctx, query, subject, lockedUntil, reason).Scan(
		&lockout.Subject, &lockout.LockedUntil, &lockout.Reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return lockout, nil
}

func (r *PostgresRepository) Get(ctx context.Context, subject string) (*models.Lockout, error) {
	query := `
		SELECT subject, locked_until, reason FROM lockouts
		WHERE subject = $1
	`
	lockout := &models.Lockout{}
	err := r.db.QueryRowContext(ctx, query, subject).Scan(
		&lockout.Subject, &lockout.LockedUntil, &lockout.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return lockout, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, subject string) error {
	query := `
		DELETE FROM lockouts
		WHERE subject = $1
	`
	if _, err := r.db.ExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM lockouts
		WHERE locked_until <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected, nil
}
