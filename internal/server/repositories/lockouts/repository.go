package lockouts

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	// Extend creates or raises the lockout for the subject. The stored
	// locked_until never decreases: concurrent extensions settle on the
	// furthest deadline.
	Extend(ctx context.Context, subject string, lockedUntil time.Time, reason string) (*models.Lockout, error)
	Get(ctx context.Context, subject string) (*models.Lockout, error)
	// Delete clears the lockout (explicit unlock).
	Delete(ctx context.Context, subject string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
