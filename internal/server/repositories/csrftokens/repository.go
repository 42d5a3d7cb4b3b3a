package csrftokens

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	// Put sets the session's current anti-forgery value (initial issue).
	Put(ctx context.Context, sessionID, value string, issuedAt time.Time) error
	Get(ctx context.Context, sessionID string) (*models.CsrfToken, error)
	// Rotate replaces oldValue with newValue only if oldValue is still
	// current; of concurrent rotations exactly one succeeds, and the old
	// value is invalid the moment it does.
	Rotate(ctx context.Context, sessionID, oldValue, newValue string, issuedAt time.Time) (bool, error)
}
