package ratelimits

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	// IncrementOrCreate inserts the counter row with count 1, or on
	// conflict increments it, and returns the updated row in a single
	// statement. Never a read followed by a write. On failure attempts
	// consecutive_failures is incremented; a success resets it to zero
	// while the raw count keeps growing.
	IncrementOrCreate(ctx context.Context, scope, key string, windowStart time.Time, failure bool) (*models.RateLimitCounter, error)
	Get(ctx context.Context, scope, key string, windowStart time.Time) (*models.RateLimitCounter, error)
	// DeleteBefore drops counters of windows that started before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
