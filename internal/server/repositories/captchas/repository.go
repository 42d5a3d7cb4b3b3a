package captchas

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

type Repository interface {
	// Issue creates (or re-arms) the unsolved challenge for the subject.
	Issue(ctx context.Context, subject string, issuedAt time.Time) error
	Get(ctx context.Context, subject string) (*models.CaptchaChallenge, error)
	// MarkSolved flips the challenge to solved; false when no challenge
	// exists for the subject.
	MarkSolved(ctx context.Context, subject string) (bool, error)
	// ConsumeSolved deletes the challenge if it is solved, reporting
	// whether one was consumed. A challenge gates exactly one
	// continuation.
	ConsumeSolved(ctx context.Context, subject string) (bool, error)
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
