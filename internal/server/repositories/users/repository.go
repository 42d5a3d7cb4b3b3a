package users

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	// GetOrCreate provisions the user for the case-folded email if it does
	// not exist yet and returns the row either way, in one round trip.
	GetOrCreate(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// LockUntil raises the explicit account lock. A nil until clears it.
	LockUntil(ctx context.Context, email string, until *time.Time) error
}
