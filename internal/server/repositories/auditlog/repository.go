package auditlog

import (
	"context"
	"time"

	"github.com/passlink/passlink/internal/server/models"
)

// Repository is append-only by contract: no update or delete exists.
// SelectBefore serves only the archive exporter; flow components never
// read the log.
type Repository interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	SelectBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.AuditEvent, error)
}
