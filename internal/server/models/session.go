package models

import "time"

// Session is a logged-in browser context backed by the sessions table.
// Expiry is detected lazily at lookup; no background sweep is required
// for correctness.
type Session struct {
	ID                string
	UserID            string
	CreatedAt         time.Time
	LastSeenAt        time.Time
	AbsoluteExpiresAt time.Time
	DeviceSnapshot    string
	RevokedAt         *time.Time
}

// ExpiresAt returns the effective expiry: the sliding deadline capped by
// the absolute one.
func (s *Session) ExpiresAt(slide time.Duration) time.Time {
	sliding := s.LastSeenAt.Add(slide)
	if sliding.After(s.AbsoluteExpiresAt) {
		return s.AbsoluteExpiresAt
	}
	return sliding
}

// Expired reports whether the session has passed its effective expiry.
func (s *Session) Expired(now time.Time, slide time.Duration) bool {
	return now.After(s.ExpiresAt(slide))
}
