// Package ratelimits provides a PostgreSQL-backed repository for
// fixed-window abuse-pressure counters.
package ratelimits

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

// IncrementOrCreate relies on the (scope, key, window_start) uniqueness
// constraint: the upsert either creates the window's counter or bumps it,
// and RETURNING hands back the post-increment row, so concurrent writers
// can never lose an update.
func (r *PostgresRepository) IncrementOrCreate(ctx context.Context, scope, key string, windowStart time.Time, failure bool) (*models.RateLimitCounter, error) {
	query := `
		INSERT INTO rate_limits (scope, key, window_start, count, consecutive_failures)
		VALUES ($1, $2, $3, 1, CASE WHEN $4 THEN 1 ELSE 0 END)
		ON CONFLICT (scope, key, window_start) DO UPDATE SET
			count = rate_limits.count + 1,
			consecutive_failures = CASE WHEN $4 THEN rate_limits.consecutive_failures + 1 ELSE 0 END
		RETURNING scope, key, window_start, count, consecutive_failures
	`
	counter := &models.RateLimitCounter{}
	err := r.db.QueryRowContext(ctx, query, scope, key, windowStart, failure).Scan(
		&counter.Scope, &counter.Key, &counter.WindowStart,
		&counter.Count, &counter.ConsecutiveFailures)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return counter, nil
}

func (r *PostgresRepository) Get(ctx context.Context, scope, key string, windowStart time.Time) (*models.RateLimitCounter, error) {
	query := `
		SELECT scope, key, window_start, count, consecutive_failures
		FROM rate_limits
		WHERE scope = $1 AND key = $2 AND window_start = $3
	`
	counter := &models.RateLimitCounter{}
	err := r.db.QueryRowContext(ctx, query, scope, key, windowStart).Scan(
		&counter.Scope, &counter.Key, &counter.WindowStart,
		&counter.Count, &counter.ConsecutiveFailures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return counter, nil
}

func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM rate_limits
		WHERE window_start < $1
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
