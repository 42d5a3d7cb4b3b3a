package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/audit"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/models"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
)

// Scope identifies a rate-limit counter family.
type Scope string

const (
	ScopeEmail   Scope = "email"
	ScopeIP      Scope = "ip"
	ScopeEmailIP Scope = "email_ip"
)

// Outcome is a limiter verdict for one scope check.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeRequireCaptcha
	OutcomeDeny
)

// Decision carries the verdict plus, for denials, the earliest moment a
// retry can succeed.
type Decision struct {
	Outcome Outcome
	RetryAt time.Time
}

// RateLimiter implements fixed-window counting with a soft (captcha) and
// a hard (deny) threshold per scope, and escalates repeated failures
// into lockouts. Counter updates go through a single atomic
// increment-or-create, so concurrent attempts never lose increments.
type RateLimiter struct {
	store  repomanager.Store
	config *config.Config
	audit  *audit.Recorder
	logger logging.Logger
	now    func() time.Time
}

// NewRateLimiter constructs a limiter over the given store.
func NewRateLimiter(store repomanager.Store, cfg *config.Config, recorder *audit.Recorder, logger logging.Logger) *RateLimiter {
	return &RateLimiter{
		store:  store,
		config: cfg,
		audit:  recorder,
		logger: logger.With("module", "ratelimit"),
		now:    time.Now,
	}
}

// Subject builds the lockout/captcha subject for a scope and key.
func Subject(scope Scope, key string) string {
	return string(scope) + ":" + key
}

// EmailIPKey builds the compound key for the email_ip scope.
func EmailIPKey(email, ip string) string {
	return email + "|" + ip
}

func (l *RateLimiter) windowStart(now time.Time) time.Time {
	return now.Truncate(l.config.RateLimitWindow)
}

func (l *RateLimiter) thresholds(scope Scope) (soft, hard int64) {
	switch scope {
	case ScopeEmail:
		return l.config.EmailSoftLimit, l.config.EmailHardLimit
	case ScopeIP:
		return l.config.IPSoftLimit, l.config.IPHardLimit
	case ScopeEmailIP:
		return l.config.EmailIPSoftLimit, l.config.EmailIPHardLimit
	}
	return 0, 0
}

// Check returns the verdict for one attempt in the given scope without
// consuming any budget. An active lockout dominates the counters.
func (l *RateLimiter) Check(ctx context.Context, scope Scope, key string) (Decision, error) {
	now := l.now()
	subject := Subject(scope, key)

	lockout, err := l.store.Lockouts(l.store.Handle()).Get(ctx, subject)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return Decision{}, fmt.Errorf("%w: checking lockout: %v", common.ErrStorage, err)
	}
	if lockout != nil && lockout.Active(now) {
		return Decision{Outcome: OutcomeDeny, RetryAt: lockout.LockedUntil}, nil
	}

	window := l.windowStart(now)
	counter, err := l.store.RateLimits(l.store.Handle()).Get(ctx, string(scope), key, window)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Decision{Outcome: OutcomeAllow}, nil
		}
		return Decision{}, fmt.Errorf("%w: reading counter: %v", common.ErrStorage, err)
	}

	soft, hard := l.thresholds(scope)
	switch {
	case counter.Count >= hard:
		return Decision{Outcome: OutcomeDeny, RetryAt: window.Add(l.config.RateLimitWindow)}, nil
	case counter.Count >= soft:
		return Decision{Outcome: OutcomeRequireCaptcha}, nil
	}
	return Decision{Outcome: OutcomeAllow}, nil
}

// RecordAttempt consumes one unit of budget in the given scope and, on a
// failed attempt, advances the consecutive-failure streak. Crossing the
// failure threshold extends a lockout; a success resets the streak and,
// if configured, clears the lockout.
func (l *RateLimiter) RecordAttempt(ctx context.Context, scope Scope, key string, success bool) error {
	now := l.now()
	counter, err := l.store.RateLimits(l.store.Handle()).IncrementOrCreate(
		ctx, string(scope), key, l.windowStart(now), !success)
	if err != nil {
		return fmt.Errorf("%w: recording attempt: %v", common.ErrStorage, err)
	}

	subject := Subject(scope, key)
	if success {
		if l.config.LockoutClearOnSuccess {
			if err := l.store.Lockouts(l.store.Handle()).Delete(ctx, subject); err != nil &&
				!errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("%w: clearing lockout: %v", common.ErrStorage, err)
			}
			if scope == ScopeEmail {
				// The account row mirrors email-scope lockouts; clear both
				// sides together.
				if err := l.store.Users(l.store.Handle()).LockUntil(ctx, key, nil); err != nil &&
					!errors.Is(err, common.ErrorNotFound) {
					return fmt.Errorf("%w: unlocking account: %v", common.ErrStorage, err)
				}
			}
		}
		return nil
	}

	if counter.ConsecutiveFailures < l.config.LockoutFailureThreshold {
		return nil
	}
	return l.escalate(ctx, scope, key, subject, counter, now)
}

func (l *RateLimiter) escalate(ctx context.Context, scope Scope, key, subject string, counter *models.RateLimitCounter, now time.Time) error {
	cooldown := l.config.LockoutCooldown
	if l.config.LockoutExponential {
		over := counter.ConsecutiveFailures - l.config.LockoutFailureThreshold
		for i := int64(0); i < over; i++ {
			cooldown *= 2
			if cooldown >= l.config.LockoutMaxCooldown {
				cooldown = l.config.LockoutMaxCooldown
				break
			}
		}
	}
	until := now.Add(cooldown)

	lockout, err := l.store.Lockouts(l.store.Handle()).Extend(ctx, subject, until, "consecutive failures")
	if err != nil {
		return fmt.Errorf("%w: extending lockout: %v", common.ErrStorage, err)
	}

	if scope == ScopeEmail {
		// Mirror the lockout onto the account row so identity-level reads
		// see it without consulting the limiter.
		until := lockout.LockedUntil
		if err := l.store.Users(l.store.Handle()).LockUntil(ctx, key, &until); err != nil &&
			!errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: locking account: %v", common.ErrStorage, err)
		}
	}

	l.audit.Record(ctx, audit.EventLockout, subject, map[string]string{
		"scope":        string(scope),
		"locked_until": lockout.LockedUntil.UTC().Format(time.RFC3339),
		"failures":     fmt.Sprintf("%d", counter.ConsecutiveFailures),
	})
	return nil
}

// RequireCaptcha arms a challenge for the subject if one is not already
// pending and records the event.
func (l *RateLimiter) RequireCaptcha(ctx context.Context, scope Scope, key string) error {
	subject := Subject(scope, key)
	if err := l.store.Captchas(l.store.Handle()).Issue(ctx, subject, l.now()); err != nil {
		return fmt.Errorf("%w: issuing captcha: %v", common.ErrStorage, err)
	}
	l.audit.Record(ctx, audit.EventCaptchaRequired, subject, map[string]string{"scope": string(scope)})
	return nil
}

// SolveCaptcha marks the pending challenge for the subject as solved.
// Challenge content verification happens upstream; the limiter only
// tracks state.
func (l *RateLimiter) SolveCaptcha(ctx context.Context, scope Scope, key string) error {
	ok, err := l.store.Captchas(l.store.Handle()).MarkSolved(ctx, Subject(scope, key))
	if err != nil {
		return fmt.Errorf("%w: solving captcha: %v", common.ErrStorage, err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// ConsumeSolvedCaptcha atomically spends a solved challenge. It reports
// false when no solved challenge exists for the subject.
func (l *RateLimiter) ConsumeSolvedCaptcha(ctx context.Context, scope Scope, key string) (bool, error) {
	ok, err := l.store.Captchas(l.store.Handle()).ConsumeSolved(ctx, Subject(scope, key))
	if err != nil {
		return false, fmt.Errorf("%w: consuming captcha: %v", common.ErrStorage, err)
	}
	return ok, nil
}
