package models

import "time"

// AuditEvent is one immutable row of the append-only security log.
// The subject is a weak identifier reference; it never blocks deletion
// of the entity it names.
type AuditEvent struct {
	ID        int64
	Timestamp time.Time
	Type      string
	Subject   string
	Metadata  map[string]string
}
