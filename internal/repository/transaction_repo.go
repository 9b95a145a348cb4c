package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// TransactionRepository handles gateway transaction data operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus, eventJSON []byte) error
	SetGatewayID(ctx context.Context, id uuid.UUID, gatewayID string) error
}

// transactionRepository implements TransactionRepository
type transactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

const transactionColumns = `id, payment_id, transaction_number, amount_cents, gateway_transaction_id, status, gateway_response, processed_at, completed_at, created_at, updated_at`

func (r *transactionRepository) Create(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, payment_id, transaction_number, amount_cents, status, gateway_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		txn.ID,
		txn.PaymentID,
		txn.TransactionNumber,
		txn.AmountCents,
		txn.Status,
	).Scan(&txn.CreatedAt, &txn.UpdatedAt)

	if err != nil {
		// The partial unique index on (payment_id) over non-terminal statuses
		// rejects a second active transaction for the same payment.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "idx_transactions_one_active" {
			return errors.NewConcurrencyError("payment already has an active transaction")
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *transactionRepository) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_transaction_id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, gatewayID))
}

func scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var txn models.Transaction
	var response []byte

	err := row.Scan(
		&txn.ID,
		&txn.PaymentID,
		&txn.TransactionNumber,
		&txn.AmountCents,
		&txn.GatewayTransactionID,
		&txn.Status,
		&response,
		&txn.ProcessedAt,
		&txn.CompletedAt,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if len(response) > 0 {
		if err := json.Unmarshal(response, &txn.GatewayResponse); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}

	return &txn, nil
}

func (r *transactionRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE payment_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		var response []byte
		err := rows.Scan(
			&txn.ID,
			&txn.PaymentID,
			&txn.TransactionNumber,
			&txn.AmountCents,
			&txn.GatewayTransactionID,
			&txn.Status,
			&response,
			&txn.ProcessedAt,
			&txn.CompletedAt,
			&txn.CreatedAt,
			&txn.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if len(response) > 0 {
			if err := json.Unmarshal(response, &txn.GatewayResponse); err != nil {
				return nil, fmt.Errorf("failed to decode gateway response: %w", err)
			}
		}
		txns = append(txns, &txn)
	}

	return txns, nil
}

// UpdateStatus is a per-row compare-and-swap on the current status. The
// gateway event payload merges additively into the stored response; earlier
// keys survive unless the event carries a replacement. Zero rows affected
// means the row is no longer in the expected predecessor status.
func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus, eventJSON []byte) error {
	if len(eventJSON) == 0 {
		eventJSON = []byte("{}")
	}

	query := `
		UPDATE transactions
		SET status = $1,
			gateway_response = COALESCE(gateway_response, '{}'::jsonb) || $2::jsonb,
			processed_at = CASE WHEN $1::text = 'PROCESSING' THEN NOW() ELSE processed_at END,
			completed_at = CASE WHEN $1::text = 'COMPLETED' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, to, string(eventJSON), id, from)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var current models.TransactionStatus
		checkQuery := `SELECT status FROM transactions WHERE id = $1`
		if err := r.db.QueryRowContext(ctx, checkQuery, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return errors.ErrTransactionNotFound
			}
			return fmt.Errorf("failed to check transaction status: %w", err)
		}
		if current == to {
			// A concurrent caller already applied this transition
			return errors.NewConcurrencyError("transaction was updated by another caller")
		}
		return errors.ErrInvalidTransition
	}

	return nil
}

// SetGatewayID records the gateway's identifier once it is known. The guard
// keeps a webhook replay from rebinding an already-linked transaction.
func (r *transactionRepository) SetGatewayID(ctx context.Context, id uuid.UUID, gatewayID string) error {
	query := `
		UPDATE transactions
		SET gateway_transaction_id = $1, updated_at = NOW()
		WHERE id = $2 AND (gateway_transaction_id IS NULL OR gateway_transaction_id = $1)`

	result, err := r.db.ExecContext(ctx, query, gatewayID, id)
	if err != nil {
		return fmt.Errorf("failed to set gateway transaction id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return errors.NewInvalidStateError("transaction is bound to a different gateway transaction")
	}

	return nil
}
