// Package models defines the row structs persisted by the identity store.
package models

import "time"

// User is an email-identified principal. Email uniqueness is enforced at
// the store level; the stored email is always case-folded.
type User struct {
	ID          string
	Email       string
	CreatedAt   time.Time
	LockedUntil *time.Time
}

// Locked reports whether an explicit account lock is active at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
