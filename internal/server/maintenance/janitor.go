// Package maintenance runs the periodic housekeeping that correctness
// does not depend on: expired rows are already inert, the janitor only
// keeps the tables from growing without bound.
package maintenance

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

// Janitor sweeps expired tokens, sessions, lockouts, stale counters and
// stale challenges.
type Janitor struct {
	store  repomanager.Store
	config *config.Config
	logger logging.Logger
	now    func() time.Time
}

// NewJanitor constructs a Janitor.
func NewJanitor(store repomanager.Store, cfg *config.Config, logger logging.Logger) *Janitor {
	return &Janitor{
		store:  store,
		config: cfg,
		logger: logger.With("module", "janitor"),
		now:    time.Now,
	}
}

// RunOnce performs a single sweep. Each table is swept independently;
// one failing sweep does not stop the others, and the first error is
// returned after all sweeps ran.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now()
	handle := j.store.Handle()
	var firstErr error

	report := func(table string, n int64, err error) {
		if err != nil {
			j.logger.Error(ctx, "sweep failed", "table", table, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		if n > 0 {
			j.logger.Info(ctx, "swept rows", "table", table, "rows", n)
		}
	}

	n, err := j.store.Tokens(handle).DeleteExpired(ctx, now)
	report("magic_link_tokens", n, err)

	n, err = j.store.Sessions(handle).DeleteExpired(ctx, now, j.config.SessionSlide)
	report("sessions", n, err)

	n, err = j.store.Lockouts(handle).DeleteExpired(ctx, now)
	report("lockouts", n, err)

	// Counters of closed windows no longer influence any decision.
	n, err = j.store.RateLimits(handle).DeleteBefore(ctx, now.Add(-j.config.RateLimitWindow))
	report("rate_limits", n, err)

	n, err = j.store.Captchas(handle).DeleteIssuedBefore(ctx, now.Add(-j.config.RateLimitWindow))
	report("captcha_challenges", n, err)

	return firstErr
}

// Run sweeps on the configured interval until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.Error(ctx, "maintenance sweep finished with errors", "error", err)
			}
		}
	}
}
