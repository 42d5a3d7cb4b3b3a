// Package captchas provides a PostgreSQL-backed repository for the
// progressive-friction challenge gate.
package captchas

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

func (r *PostgresRepository) Issue(ctx context.Context, subject string, issuedAt time.Time) error {
	query := `
		INSERT INTO captcha_challenges (subject, issued_at, solved)
		VALUES ($1, $2, false)
		ON CONFLICT (subject) DO UPDATE SET issued_at = excluded.issued_at, solved = false
	`
	if _, err := r.db.ExecContext(ctx, query, subject, issuedAt); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, subject string) (*models.CaptchaChallenge, error) {
	query := `
		SELECT subject, issued_at, solved FROM captcha_challenges
		WHERE subject = $1
	`
	challenge := &models.CaptchaChallenge{}
	err := r.db.QueryRowContext(ctx, query, subject).Scan(
		&challenge.Subject, &challenge.IssuedAt, &challenge.Solved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return challenge, nil
}

func (r *PostgresRepository) MarkSolved(ctx context.Context, subject string) (bool, error) {
	query := `
		UPDATE captcha_challenges SET solved = true
		WHERE subject = $1
	`
	res, err := r.db.ExecContext(ctx, query, subject)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) ConsumeSolved(ctx context.Context, subject string) (bool, error) {
	query := `
		DELETE FROM captcha_challenges
		WHERE subject = $1 AND solved
	`
	res, err := r.db.ExecContext(ctx, query, subject)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM captcha_challenges
		WHERE issued_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected, nil
}
