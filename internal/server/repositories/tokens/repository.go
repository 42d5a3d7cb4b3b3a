package tokens

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.MagicLinkToken) error
	Get(ctx context.Context, id string) (*models.MagicLinkToken, error)
	// Consume marks the token consumed if, and only if, it is currently
	// unconsumed and unexpired. The returned flag reports whether this
	// caller won the transition; concurrent callers observe false.
	Consume(ctx context.Context, id string, now time.Time) (bool, error)
	// ConsumeLiveByUser spends every unconsumed, unexpired token of the
	// user and reports how many rows it hit. Issuing a new token retires
	// the outstanding ones through this call.
	ConsumeLiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)
	// DeleteExpired removes tokens whose expiry already passed. Safe to
	// run beside live traffic: the guard re-checks expiry at delete time.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
