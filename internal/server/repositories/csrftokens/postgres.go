// Package csrftokens provides a PostgreSQL-backed repository for
// rotating per-session anti-forgery tokens.
package csrftokens

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

func (r *PostgresRepository) Put(ctx context.Context, sessionID, value string, issuedAt time.Time) error {
	query := `
		INSERT INTO csrf_tokens (session_id, value, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET value = excluded.value, issued_at = excluded.issued_at
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, value, issuedAt); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, sessionID string) (*models.CsrfToken, error) {
	query := `
		SELECT session_id, value, issued_at FROM csrf_tokens
		WHERE session_id = $1
	`
	token := &models.CsrfToken{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&token.SessionID, &token.Value, &token.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return token, nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, sessionID, oldValue, newValue string, issuedAt time.Time) (bool, error) {
	query := `
		UPDATE csrf_tokens SET value = $3, issued_at = $4
		WHERE session_id = $1 AND value = $2
	`
	res, err := r.db.ExecContext(ctx, query, sessionID, oldValue, newValue, issuedAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected == 1, nil
}
