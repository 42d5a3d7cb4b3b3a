package audit

import (
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

func newEvent(ts time.Time, eventType, subject string, metadata map[string]string) *models.AuditEvent {
	copied := make(map[string]string, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	return &models.AuditEvent{
		Timestamp: ts,
		Type:      eventType,
		Subject:   subject,
		Metadata:  copied,
	}
}
