package repository

import (
	"context"
	"database/sql"
	"fmt"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
)

// PaymentRepository handles payment data operations
type PaymentRepository interface {
	Create(ctx context.Context, tx *sql.Tx, payment *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByRequestID(ctx context.Context, requestID string) (*models.Payment, error)
	GetByBookingID(ctx context.Context, bookingID string) (*models.Payment, error)
}

// paymentRepository implements PaymentRepository
type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *sql.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, tx *sql.Tx, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, booking_id, request_id, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.RequestID,
		payment.TotalCents,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, request_id, total_cents, created_at, updated_at
		FROM payments
		WHERE id = $1`

	var payment models.Payment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.RequestID,
		&payment.TotalCents,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// GetByRequestID returns nil without error when no payment exists for the
// request; absence is the normal case on a first settlement attempt.
func (r *paymentRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, request_id, total_cents, created_at, updated_at
		FROM payments
		WHERE request_id = $1`

	var payment models.Payment
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.RequestID,
		&payment.TotalCents,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by request id: %w", err)
	}

	return &payment, nil
}

func (r *paymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	query := `
		SELECT id, booking_id, request_id, total_cents, created_at, updated_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var payment models.Payment
	err := r.db.QueryRowContext(ctx, query, bookingID).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.RequestID,
		&payment.TotalCents,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by booking id: %w", err)
	}

	return &payment, nil
}
