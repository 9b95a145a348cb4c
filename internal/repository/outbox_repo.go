package repository

import (
	"context"
	"database/sql"
	"fmt"

	"medifin-backend/internal/models"
)

// OutboxRepository handles notification outbox data operations
type OutboxRepository interface {
	Create(ctx context.Context, tx *sql.Tx, event *models.OutboxEvent) error
	GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
	IncrementRetry(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// outboxRepository implements OutboxRepository
type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

// Create inserts the event inside the caller's transaction (when one is
// given) so the notification is durable exactly when the financial change is
func (r *outboxRepository) Create(ctx context.Context, tx *sql.Tx, event *models.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_key, topic, payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, event.EventKey, event.Topic, event.Payload, models.OutboxStatusPending)
	} else {
		row = r.db.QueryRowContext(ctx, query, event.EventKey, event.Topic, event.Payload, models.OutboxStatusPending)
	}

	err := row.Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	event.Status = models.OutboxStatusPending
	return nil
}

func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	query := `
		SELECT id, event_key, topic, payload, status, retry_count, created_at, updated_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY id
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, models.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []*models.OutboxEvent
	for rows.Next() {
		var event models.OutboxEvent
		err := rows.Scan(
			&event.ID,
			&event.EventKey,
			&event.Topic,
			&event.Payload,
			&event.Status,
			&event.RetryCount,
			&event.CreatedAt,
			&event.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &event)
	}

	return events, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET status = $1, updated_at = NOW() WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, models.OutboxStatusSent, id); err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}

	return nil
}

func (r *outboxRepository) IncrementRetry(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment outbox retry count: %w", err)
	}

	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64) error {
	query := `UPDATE outbox_events SET status = $1, updated_at = NOW() WHERE id = $2`

	if _, err := r.db.ExecContext(ctx, query, models.OutboxStatusFailed, id); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}

	return nil
}
