package sessions

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	// Touch advances last_seen_at to now, guarded so that revoked
	// sessions and sessions past either expiry never renew.
	Touch(ctx context.Context, id string, now time.Time, slide time.Duration) (bool, error)
	// Revoke is terminal; it affects only sessions not yet revoked.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	RevokeAll(ctx context.Context, userID string, now time.Time) (int64, error)
	// DeleteExpired removes sessions past their effective expiry,
	// re-checking expiry in the delete guard so a concurrent renewal is
	// never clobbered.
	DeleteExpired(ctx context.Context, now time.Time, slide time.Duration) (int64, error)
}
