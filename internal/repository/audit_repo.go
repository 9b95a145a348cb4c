package repository

import (
	"context"
	"database/sql"
	"fmt"

	"medifin-backend/internal/models"
)

// AuditRepository records immutable state-transition events. Append-only;
// the core never reads audit records back.
type AuditRepository interface {
	Record(ctx context.Context, tx *sql.Tx, event *models.AuditEvent) error
}

// auditRepository implements AuditRepository
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, tx *sql.Tx, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (entity_type, entity_id, action, actor, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, event.EntityType, event.EntityID, event.Action, event.Actor, event.Before, event.After)
	} else {
		row = r.db.QueryRowContext(ctx, query, event.EntityType, event.EntityID, event.Action, event.Actor, event.Before, event.After)
	}

	if err := row.Scan(&event.ID, &event.CreatedAt); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}
