package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
)

// ClaimRepository handles claim data operations
type ClaimRepository interface {
	Create(ctx context.Context, claim *models.Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error)
	GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Claim, error)
	Approve(ctx context.Context, tx *sql.Tx, id uuid.UUID, approvedCents int64, decidedAt time.Time) error
	Reject(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, decidedAt time.Time) error
	ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*models.Claim, error)
}

// claimRepository implements ClaimRepository
type claimRepository struct {
	db *sql.DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB) ClaimRepository {
	return &claimRepository{db: db}
}

const claimColumns = `id, insurance_id, claim_cents, description, status, approved_cents, rejection_reason, submitted_at, decided_at`

func (r *claimRepository) Create(ctx context.Context, claim *models.Claim) error {
	query := `
		INSERT INTO claims (id, insurance_id, claim_cents, description, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING submitted_at`

	err := r.db.QueryRowContext(ctx, query,
		claim.ID,
		claim.InsuranceID,
		claim.ClaimCents,
		claim.Description,
		claim.Status,
	).Scan(&claim.SubmittedAt)

	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}

	return nil
}

func (r *claimRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`
	return scanClaim(r.db.QueryRowContext(ctx, query, id))
}

func (r *claimRepository) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1 FOR UPDATE`
	return scanClaim(tx.QueryRowContext(ctx, query, id))
}

func scanClaim(row *sql.Row) (*models.Claim, error) {
	var claim models.Claim
	err := row.Scan(
		&claim.ID,
		&claim.InsuranceID,
		&claim.ClaimCents,
		&claim.Description,
		&claim.Status,
		&claim.ApprovedCents,
		&claim.RejectionReason,
		&claim.SubmittedAt,
		&claim.DecidedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	return &claim, nil
}

// Approve flips a claim from SUBMITTED to APPROVED. The status predicate
// makes the decision happen at most once; a decided claim is immutable.
func (r *claimRepository) Approve(ctx context.Context, tx *sql.Tx, id uuid.UUID, approvedCents int64, decidedAt time.Time) error {
	query := `
		UPDATE claims
		SET status = $1, approved_cents = $2, decided_at = $3
		WHERE id = $4 AND status = $5`

	result, err := tx.ExecContext(ctx, query, models.ClaimStatusApproved, approvedCents, decidedAt, id, models.ClaimStatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to approve claim: %w", err)
	}

	return r.checkDecided(ctx, tx, result, id)
}

// Reject flips a claim from SUBMITTED to REJECTED with the same
// at-most-once guarantee as Approve.
func (r *claimRepository) Reject(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, decidedAt time.Time) error {
	query := `
		UPDATE claims
		SET status = $1, rejection_reason = $2, decided_at = $3
		WHERE id = $4 AND status = $5`

	result, err := tx.ExecContext(ctx, query, models.ClaimStatusRejected, reason, decidedAt, id, models.ClaimStatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to reject claim: %w", err)
	}

	return r.checkDecided(ctx, tx, result, id)
}

func (r *claimRepository) checkDecided(ctx context.Context, tx *sql.Tx, result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var status models.ClaimStatus
		checkQuery := `SELECT status FROM claims WHERE id = $1`
		if err := tx.QueryRowContext(ctx, checkQuery, id).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return errors.ErrClaimNotFound
			}
			return fmt.Errorf("failed to check claim status: %w", err)
		}
		return errors.ErrClaimAlreadyDecided
	}

	return nil
}

func (r *claimRepository) ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*models.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE insurance_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, planID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		var claim models.Claim
		err := rows.Scan(
			&claim.ID,
			&claim.InsuranceID,
			&claim.ClaimCents,
			&claim.Description,
			&claim.Status,
			&claim.ApprovedCents,
			&claim.RejectionReason,
			&claim.SubmittedAt,
			&claim.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, &claim)
	}

	return claims, nil
}
