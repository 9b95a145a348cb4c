package repository

import (
	"context"
	"database/sql"
	"fmt"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
)

// InvoiceRepository handles invoice data operations
type InvoiceRepository interface {
	Create(ctx context.Context, tx *sql.Tx, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	GetLatestByBookingID(ctx context.Context, bookingID string) (*models.Invoice, error)
	Finalize(ctx context.Context, id uuid.UUID) error
	MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID, paymentMethod string) error
	AddAdjustment(ctx context.Context, adjustment *models.InvoiceAdjustment) error
	ListAdjustments(ctx context.Context, invoiceID uuid.UUID) ([]*models.InvoiceAdjustment, error)
}

// invoiceRepository implements InvoiceRepository
type invoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

const invoiceColumns = `id, booking_id, invoice_number, total_cents, status, finalized_at, paid_at, payment_method, transaction_id, created_at, updated_at`

func (r *invoiceRepository) Create(ctx context.Context, tx *sql.Tx, invoice *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, booking_id, invoice_number, total_cents, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`

	var row *sql.Row
	if tx != nil {
		row = tx.QueryRowContext(ctx, query, invoice.ID, invoice.BookingID, invoice.InvoiceNumber, invoice.TotalCents, invoice.Status)
	} else {
		row = r.db.QueryRowContext(ctx, query, invoice.ID, invoice.BookingID, invoice.InvoiceNumber, invoice.TotalCents, invoice.Status)
	}

	if err := row.Scan(&invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(r.db.QueryRowContext(ctx, query, id))
}

func (r *invoiceRepository) GetLatestByBookingID(ctx context.Context, bookingID string) (*models.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	return scanInvoice(r.db.QueryRowContext(ctx, query, bookingID))
}

func scanInvoice(row *sql.Row) (*models.Invoice, error) {
	var invoice models.Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.BookingID,
		&invoice.InvoiceNumber,
		&invoice.TotalCents,
		&invoice.Status,
		&invoice.FinalizedAt,
		&invoice.PaidAt,
		&invoice.PaymentMethod,
		&invoice.TransactionID,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return &invoice, nil
}

// Finalize is a compare-and-swap from DRAFT to FINALIZED, freezing the total
func (r *invoiceRepository) Finalize(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE invoices
		SET status = $1, finalized_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, models.InvoiceStatusFinalized, id, models.InvoiceStatusDraft)
	if err != nil {
		return fmt.Errorf("failed to finalize invoice: %w", err)
	}

	return r.checkLifecycle(ctx, result, id)
}

// MarkPaid is a compare-and-swap from FINALIZED to PAID, recording the
// settling transaction
func (r *invoiceRepository) MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID, paymentMethod string) error {
	query := `
		UPDATE invoices
		SET status = $1, paid_at = NOW(), transaction_id = $2, payment_method = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5`

	result, err := r.db.ExecContext(ctx, query, models.InvoiceStatusPaid, transactionID, paymentMethod, id, models.InvoiceStatusFinalized)
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	return r.checkLifecycle(ctx, result, id)
}

func (r *invoiceRepository) checkLifecycle(ctx context.Context, result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var status models.InvoiceStatus
		checkQuery := `SELECT status FROM invoices WHERE id = $1`
		if err := r.db.QueryRowContext(ctx, checkQuery, id).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return errors.ErrInvoiceNotFound
			}
			return fmt.Errorf("failed to check invoice status: %w", err)
		}
		if status == models.InvoiceStatusPaid {
			return errors.ErrInvoiceImmutable
		}
		return errors.NewInvalidStateError(fmt.Sprintf("invoice is %s", status))
	}

	return nil
}

// AddAdjustment appends a correction record; the paid invoice itself is
// never rewritten
func (r *invoiceRepository) AddAdjustment(ctx context.Context, adjustment *models.InvoiceAdjustment) error {
	query := `
		INSERT INTO invoice_adjustments (id, invoice_id, amount_cents, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		adjustment.ID,
		adjustment.InvoiceID,
		adjustment.AmountCents,
		adjustment.Reason,
	).Scan(&adjustment.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to add invoice adjustment: %w", err)
	}

	return nil
}

func (r *invoiceRepository) ListAdjustments(ctx context.Context, invoiceID uuid.UUID) ([]*models.InvoiceAdjustment, error) {
	query := `
		SELECT id, invoice_id, amount_cents, reason, created_at
		FROM invoice_adjustments
		WHERE invoice_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice adjustments: %w", err)
	}
	defer rows.Close()

	var adjustments []*models.InvoiceAdjustment
	for rows.Next() {
		var adj models.InvoiceAdjustment
		if err := rows.Scan(&adj.ID, &adj.InvoiceID, &adj.AmountCents, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice adjustment: %w", err)
		}
		adjustments = append(adjustments, &adj)
	}

	return adjustments, nil
}
