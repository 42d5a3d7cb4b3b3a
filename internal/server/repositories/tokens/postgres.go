// Package tokens provides a PostgreSQL-backed repository for single-use
// magic-link credentials.
package tokens

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

func (r *PostgresRepository) Create(ctx context.Context, token *models.MagicLinkToken) error {
	query := `
		INSERT INTO magic_link_tokens (id, user_id, secret_hash, fingerprint_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.SecretHash, token.FingerprintHash,
		token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.MagicLinkToken, error) {
	query := `
		SELECT id, user_id, secret_hash, fingerprint_hash, created_at, expires_at, consumed_at
		FROM magic_link_tokens
		WHERE id = $1
	`
	token := &models.MagicLinkToken{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID, &token.UserID, &token.SecretHash, &token.FingerprintHash,
		&token.CreatedAt, &token.ExpiresAt, &token.ConsumedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return token, nil
}

// Consume is the single-statement conditional update that makes token
// consumption linearizable: of any number of concurrent callers, exactly
// one sees an affected row.
func (r *PostgresRepository) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE magic_link_tokens SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) ConsumeLiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `
		UPDATE magic_link_tokens SET consumed_at = $2
		WHERE user_id = $1 AND consumed_at IS NULL AND expires_at > $2
	`
	res, err := r.db.ExecContext(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM magic_link_tokens
		WHERE expires_at <= $1
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
