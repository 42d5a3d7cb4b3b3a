package models

import "time"

// CsrfToken is the per-session anti-forgery value. It rotates on each
// state-changing use; the previous value is invalid immediately.
type CsrfToken struct {
	SessionID string
	Value     string
	IssuedAt  time.Time
}
