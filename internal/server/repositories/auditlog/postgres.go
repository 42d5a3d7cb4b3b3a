// Package auditlog provides a PostgreSQL-backed repository for the
// append-only security audit trail.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/passlink/passlink/internal/common"
	"github.com/passlink/passlink/internal/dbx"
	"github.com/passlink/passlink/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, event *models.AuditEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	query := `
		INSERT INTO audit_log (timestamp, type, subject, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query, event.Timestamp, event.Type, event.Subject, encoded).
		Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// SelectBefore pages events older than cutoff in id order; afterID is the
// exporter's resume cursor.
func (r *PostgresRepository) SelectBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT id, timestamp, type, subject, metadata FROM audit_log
		WHERE timestamp < $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.AuditEvent
	for rows.Next() {
		event := &models.AuditEvent{}
		var encoded []byte
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.Type, &event.Subject, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
		if err := json.Unmarshal(encoded, &event.Metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return result, nil
}
