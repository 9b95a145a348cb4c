package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// InsuranceRepository handles insurance plan data operations
type InsuranceRepository interface {
	CreatePlan(ctx context.Context, plan *models.InsurancePlan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*models.InsurancePlan, error)
	GetPlanForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.InsurancePlan, error)
	ApproveDeduct(ctx context.Context, tx *sql.Tx, id uuid.UUID, amountCents int64, version int) (int64, error)
	IncrementSubmitted(ctx context.Context, id uuid.UUID) error
	IncrementRejected(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	CancelPlan(ctx context.Context, id uuid.UUID) error
	ExpirePlans(ctx context.Context, now time.Time, limit int) (int64, error)
}

// insuranceRepository implements InsuranceRepository
type insuranceRepository struct {
	db *sql.DB
}

// NewInsuranceRepository creates a new insurance repository
func NewInsuranceRepository(db *sql.DB) InsuranceRepository {
	return &insuranceRepository{db: db}
}

const planColumns = `id, owner_id, total_cents, balance_cents, coverage_percent, max_claim_cents, covered_treatments, valid_from, valid_upto, status, total_claims, approved_claims, rejected_claims, total_claims_cents, version, created_at, updated_at`

func (r *insuranceRepository) CreatePlan(ctx context.Context, plan *models.InsurancePlan) error {
	query := `
		INSERT INTO insurance_plans (id, owner_id, total_cents, balance_cents, coverage_percent, max_claim_cents, covered_treatments, valid_from, valid_upto, status, total_claims, approved_claims, rejected_claims, total_claims_cents, version, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, 0, 1, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		plan.ID,
		plan.OwnerID,
		plan.TotalCents,
		plan.CoveragePercent,
		plan.MaxClaimCents,
		pq.Array(plan.CoveredTreatments),
		plan.ValidFrom,
		plan.ValidUpto,
		plan.Status,
	).Scan(&plan.CreatedAt, &plan.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create insurance plan: %w", err)
	}

	plan.BalanceCents = plan.TotalCents
	plan.Version = 1
	return nil
}

func (r *insuranceRepository) GetPlan(ctx context.Context, id uuid.UUID) (*models.InsurancePlan, error) {
	query := `SELECT ` + planColumns + ` FROM insurance_plans WHERE id = $1`
	return scanPlan(r.db.QueryRowContext(ctx, query, id))
}

func (r *insuranceRepository) GetPlanForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.InsurancePlan, error) {
	query := `SELECT ` + planColumns + ` FROM insurance_plans WHERE id = $1 FOR UPDATE`
	return scanPlan(tx.QueryRowContext(ctx, query, id))
}

func scanPlan(row *sql.Row) (*models.InsurancePlan, error) {
	var plan models.InsurancePlan
	err := row.Scan(
		&plan.ID,
		&plan.OwnerID,
		&plan.TotalCents,
		&plan.BalanceCents,
		&plan.CoveragePercent,
		&plan.MaxClaimCents,
		pq.Array(&plan.CoveredTreatments),
		&plan.ValidFrom,
		&plan.ValidUpto,
		&plan.Status,
		&plan.TotalClaims,
		&plan.ApprovedClaims,
		&plan.RejectedClaims,
		&plan.TotalClaimsCents,
		&plan.Version,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insurance plan: %w", err)
	}

	return &plan, nil
}

// ApproveDeduct decrements the plan balance and bumps the approval counters
// as one conditional update. The balance guard makes over-approval impossible
// under concurrent callers; the version guard detects racing writers. Returns
// the remaining balance.
func (r *insuranceRepository) ApproveDeduct(ctx context.Context, tx *sql.Tx, id uuid.UUID, amountCents int64, version int) (int64, error) {
	query := `
		UPDATE insurance_plans
		SET balance_cents = balance_cents - $1,
			approved_claims = approved_claims + 1,
			total_claims_cents = total_claims_cents + $1,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $2 AND version = $3 AND balance_cents >= $1
		RETURNING balance_cents`

	var remaining int64
	err := tx.QueryRowContext(ctx, query, amountCents, id, version).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to deduct plan balance: %w", err)
	}

	// Zero rows: distinguish a balance shortfall from a version conflict
	var currentBalance int64
	checkQuery := `SELECT balance_cents FROM insurance_plans WHERE id = $1`
	if err := tx.QueryRowContext(ctx, checkQuery, id).Scan(&currentBalance); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.ErrPlanNotFound
		}
		return 0, fmt.Errorf("failed to check plan balance: %w", err)
	}

	if currentBalance < amountCents {
		return 0, errors.ErrInsufficientBalance
	}

	return 0, errors.NewConcurrencyError("insurance plan was modified by another transaction")
}

func (r *insuranceRepository) IncrementSubmitted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE insurance_plans
		SET total_claims = total_claims + 1, updated_at = NOW()
		WHERE id = $1`

	return execExpectingRow(ctx, r.db, query, errors.ErrPlanNotFound, id)
}

func (r *insuranceRepository) IncrementRejected(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	query := `
		UPDATE insurance_plans
		SET rejected_claims = rejected_claims + 1, updated_at = NOW()
		WHERE id = $1`

	return execExpectingRow(ctx, tx, query, errors.ErrPlanNotFound, id)
}

// CancelPlan soft-cancels a plan. Plans are never deleted while claims
// reference them.
func (r *insuranceRepository) CancelPlan(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE insurance_plans
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, models.PlanStatusCancelled, id, models.PlanStatusActive)
	if err != nil {
		return fmt.Errorf("failed to cancel insurance plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var status models.PlanStatus
		checkQuery := `SELECT status FROM insurance_plans WHERE id = $1`
		if err := r.db.QueryRowContext(ctx, checkQuery, id).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return errors.ErrPlanNotFound
			}
			return fmt.Errorf("failed to check plan status: %w", err)
		}
		return errors.NewInvalidStateError(fmt.Sprintf("plan is %s and cannot be cancelled", status))
	}

	return nil
}

// ExpirePlans is the sweep primitive: active plans past their validity window
// move to EXPIRED. Idempotent and safe under concurrent traffic.
func (r *insuranceRepository) ExpirePlans(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		UPDATE insurance_plans
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM insurance_plans
			WHERE status = $2 AND valid_upto < $3
			LIMIT $4
		)`

	result, err := r.db.ExecContext(ctx, query, models.PlanStatusExpired, models.PlanStatusActive, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to expire insurance plans: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execExpectingRow(ctx context.Context, ex execer, query string, notFound error, args ...any) error {
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
