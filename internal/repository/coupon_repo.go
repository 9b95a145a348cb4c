// Package repository provides data access layer implementations
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
)

// CouponRepository handles coupon data operations
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (int, error)
	ReleaseUsage(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

// couponRepository implements CouponRepository
type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository(db *sql.DB) CouponRepository {
	return &couponRepository{db: db}
}

func (r *couponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_order_cents, max_usage_count, usage_count, valid_from, valid_upto, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		coupon.ID,
		strings.ToUpper(coupon.Code),
		coupon.DiscountType,
		coupon.DiscountValue,
		coupon.MinOrderCents,
		coupon.MaxUsageCount,
		coupon.ValidFrom,
		coupon.ValidUpto,
		coupon.IsActive,
	).Scan(&coupon.CreatedAt, &coupon.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	coupon.Code = strings.ToUpper(coupon.Code)
	return nil
}

func (r *couponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, min_order_cents, max_usage_count, usage_count, valid_from, valid_upto, is_active, created_at, updated_at
		FROM coupons
		WHERE code = UPPER($1)`

	return r.scanCoupon(r.db.QueryRowContext(ctx, query, code))
}

func (r *couponRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	query := `
		SELECT id, code, discount_type, discount_value, min_order_cents, max_usage_count, usage_count, valid_from, valid_upto, is_active, created_at, updated_at
		FROM coupons
		WHERE id = $1`

	return r.scanCoupon(r.db.QueryRowContext(ctx, query, id))
}

func (r *couponRepository) scanCoupon(row *sql.Row) (*models.Coupon, error) {
	var coupon models.Coupon
	err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&coupon.MinOrderCents,
		&coupon.MaxUsageCount,
		&coupon.UsageCount,
		&coupon.ValidFrom,
		&coupon.ValidUpto,
		&coupon.IsActive,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, errors.ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return &coupon, nil
}

// IncrementUsage performs the validity check and the increment as a single
// conditional update. Zero rows affected means the usage cap was reached by a
// concurrent redemption, even if a prior read looked fine.
func (r *couponRepository) IncrementUsage(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND is_active = true AND usage_count < max_usage_count
		RETURNING usage_count`

	var usageCount int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&usageCount)
	if err == sql.ErrNoRows {
		return 0, errors.ErrUsageExceeded
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	return usageCount, nil
}

// ReleaseUsage undoes one redemption during saga compensation. The guard
// keeps usage_count from going negative if compensation is replayed.
func (r *couponRepository) ReleaseUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE coupons
		SET usage_count = usage_count - 1, updated_at = NOW()
		WHERE id = $1 AND usage_count > 0`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release coupon usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return errors.ErrCouponNotFound
	}

	return nil
}

func (r *couponRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE coupons SET is_active = false, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return errors.ErrCouponNotFound
	}

	return nil
}

// DeactivateExpired is the sweep primitive: it only ever moves coupons toward
// inactive and is safe to run concurrently with request traffic.
func (r *couponRepository) DeactivateExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		UPDATE coupons
		SET is_active = false, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM coupons
			WHERE is_active = true AND valid_upto < $1
			LIMIT $2
		)`

	result, err := r.db.ExecContext(ctx, query, now, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired coupons: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
