package models

import "time"

// RateLimitCounter is an abuse-pressure counter for one (scope, key)
// pair within a fixed window. Increments are atomic at the store level.
type RateLimitCounter struct {
	Scope               string
	Key                 string
	WindowStart         time.Time
	Count               int64
	ConsecutiveFailures int64
}

// Lockout is a derived cool-down for a subject. locked_until is
// monotonically non-decreasing while the lockout is active.
type Lockout struct {
	Subject     string
	LockedUntil time.Time
	Reason      string
}

// Active reports whether the lockout still applies at now.
func (l *Lockout) Active(now time.Time) bool {
	return l.LockedUntil.After(now)
}

// CaptchaChallenge is the progressive-friction gate required once a
// subject's failure pressure crosses the soft threshold.
type CaptchaChallenge struct {
	Subject  string
	IssuedAt time.Time
	Solved   bool
}
