// Package sessions provides a PostgreSQL-backed repository for
// database-backed login sessions with sliding and absolute expiration.
package sessions

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

const sessionColumns = `id, user_id, created_at, last_seen_at, absolute_expires_at, device_snapshot, revoked_at`

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, created_at, last_seen_at, absolute_expires_at, device_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.CreatedAt, session.LastSeenAt,
		session.AbsoluteExpiresAt, session.DeviceSnapshot)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE id = $1
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.CreatedAt, &session.LastSeenAt,
		&session.AbsoluteExpiresAt, &session.DeviceSnapshot, &session.RevokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return session, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		session := &models.Session{}
		if err := rows.Scan(
			&session.ID, &session.UserID, &session.CreatedAt, &session.LastSeenAt,
			&session.AbsoluteExpiresAt, &session.DeviceSnapshot, &session.RevokedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return result, nil
}

// Touch renews the sliding window in one guarded statement. The guard
// rejects revoked sessions and sessions already past the sliding or
// absolute deadline, so an expired session can never renew itself.
func (r *PostgresRepository) Touch(ctx context.Context, id string, now time.Time, slide time.Duration) (bool, error) {
	query := `
		UPDATE sessions SET last_seen_at = $2
		WHERE id = $1
		  AND revoked_at IS NULL
		  AND absolute_expires_at > $2
		  AND last_seen_at + $3 * interval '1 second' > $2
	`
	res, err := r.db.ExecContext(ctx, query, id, now, slide.Seconds())
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE sessions SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
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

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error) {
	query := `
		UPDATE sessions SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
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

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time, slide time.Duration) (int64, error) {
	query := `
		DELETE FROM sessions
		WHERE revoked_at IS NOT NULL
		   OR absolute_expires_at <= $1
		   OR last_seen_at + $2 * interval '1 second' <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now, slide.Seconds())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return affected, nil
}
