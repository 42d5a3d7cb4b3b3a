package models

import "time"

// MagicLinkToken is a single-use credential. Only the one-way hash of the
// secret is stored; the opaque secret itself is never persisted.
type MagicLinkToken struct {
	ID              string
	UserID          string
	SecretHash      []byte
	FingerprintHash string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
}

// Live reports whether the token is unconsumed and unexpired at now.
func (t *MagicLinkToken) Live(now time.Time) bool {
	return t.ConsumedAt == nil && t.ExpiresAt.After(now)
}
