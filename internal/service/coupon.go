package service

import (
	"context"
	"strings"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/google/uuid"
)

// couponService implements CouponService
type couponService struct {
	couponRepo repository.CouponRepository
	auditRepo  repository.AuditRepository
}

// NewCouponService creates a new coupon service
func NewCouponService(deps *Dependencies) CouponService {
	return &couponService{
		couponRepo: deps.CouponRepo,
		auditRepo:  deps.AuditRepo,
	}
}

func (s *couponService) Create(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error) {
	validFrom, validUpto, err := parseValidity(req.ValidFrom, req.ValidUpto)
	if err != nil {
		return nil, err
	}

	if req.DiscountType == models.DiscountTypePercentage && req.DiscountValue > 100 {
		return nil, errors.NewValidationError("percentage discount cannot exceed 100")
	}

	coupon := &models.Coupon{
		ID:            uuid.New(),
		Code:          strings.ToUpper(strings.TrimSpace(req.Code)),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinOrderCents: req.MinOrderCents,
		MaxUsageCount: req.MaxUsageCount,
		ValidFrom:     validFrom,
		ValidUpto:     validUpto,
		IsActive:      true,
	}

	if err := s.couponRepo.Create(ctx, coupon); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "coupon", coupon.ID.String(), "created", nil, coupon)

	logger.WithContext(ctx).WithField("code", coupon.Code).Info("Coupon created")
	return coupon, nil
}

func (s *couponService) Get(ctx context.Context, code string) (*models.Coupon, error) {
	return s.couponRepo.GetByCode(ctx, code)
}

// Validate answers whether the coupon would apply to the given order amount.
// It is a pure read; two callers validating the last usage slot both see it
// as available, and only Redeem decides who gets it.
func (s *couponService) Validate(ctx context.Context, code string, orderCents int64) (*models.CouponQuote, error) {
	if orderCents <= 0 {
		return nil, errors.NewValidationError("order amount must be positive")
	}

	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.checkRedeemable(coupon, orderCents); err != nil {
		return nil, err
	}

	discount := coupon.DiscountFor(orderCents)
	return &models.CouponQuote{
		Code:          coupon.Code,
		DiscountCents: discount,
		FinalCents:    orderCents - discount,
	}, nil
}

// Redeem consumes one usage slot. The increment is a single conditional
// update, so concurrent redemptions of the last slot resolve to exactly one
// winner; the losers get a usage-exceeded error.
func (s *couponService) Redeem(ctx context.Context, code string, orderCents int64) (*models.RedeemResult, error) {
	if orderCents <= 0 {
		return nil, errors.NewValidationError("order amount must be positive")
	}

	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.checkRedeemable(coupon, orderCents); err != nil {
		return nil, err
	}

	usageCount, err := s.couponRepo.IncrementUsage(ctx, coupon.ID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUsageExceeded) {
			metrics.CouponsExhausted.Inc()
		}
		return nil, err
	}

	metrics.CouponsRedeemed.Inc()
	recordAudit(ctx, s.auditRepo, nil, "coupon", coupon.ID.String(), "redeemed",
		map[string]any{"usage_count": usageCount - 1},
		map[string]any{"usage_count": usageCount})

	logger.WithContext(ctx).
		WithField("code", coupon.Code).
		WithField("usage_count", usageCount).
		Info("Coupon redeemed")

	discount := coupon.DiscountFor(orderCents)
	return &models.RedeemResult{
		Code:          coupon.Code,
		UsageCount:    usageCount,
		DiscountCents: discount,
		FinalCents:    orderCents - discount,
	}, nil
}

// ReleaseUsage hands a consumed slot back when a later settlement step fails.
// Releasing a coupon that has no consumed slots is a no-op.
func (s *couponService) ReleaseUsage(ctx context.Context, couponID uuid.UUID) error {
	if err := s.couponRepo.ReleaseUsage(ctx, couponID); err != nil {
		return err
	}

	recordAudit(ctx, s.auditRepo, nil, "coupon", couponID.String(), "usage_released", nil, nil)
	logger.WithContext(ctx).WithField("coupon_id", couponID).Info("Coupon usage released")
	return nil
}

func (s *couponService) Deactivate(ctx context.Context, code string) error {
	coupon, err := s.couponRepo.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	if err := s.couponRepo.Deactivate(ctx, coupon.ID); err != nil {
		return err
	}

	recordAudit(ctx, s.auditRepo, nil, "coupon", coupon.ID.String(), "deactivated",
		map[string]any{"is_active": true}, map[string]any{"is_active": false})
	return nil
}

// checkRedeemable applies the non-atomic eligibility checks. The usage-count
// check here is advisory only; the authoritative check happens inside
// IncrementUsage.
func (s *couponService) checkRedeemable(coupon *models.Coupon, orderCents int64) error {
	if !coupon.IsActive {
		return errors.ErrCouponInactive
	}

	now := time.Now()
	if now.Before(coupon.ValidFrom) || now.After(coupon.ValidUpto) {
		return errors.ErrCouponExpired
	}

	if coupon.UsageCount >= coupon.MaxUsageCount {
		return errors.ErrUsageExceeded
	}

	if orderCents < coupon.MinOrderCents {
		return errors.NewValidationError("order amount is below the coupon minimum")
	}

	return nil
}

// parseValidity parses a YYYY-MM-DD validity window. The upper bound is
// inclusive of the whole day.
func parseValidity(from, upto string) (time.Time, time.Time, error) {
	validFrom, err := time.Parse("2006-01-02", from)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewValidationError("invalid valid_from date format, expected YYYY-MM-DD")
	}

	validUpto, err := time.Parse("2006-01-02", upto)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewValidationError("invalid valid_upto date format, expected YYYY-MM-DD")
	}
	validUpto = validUpto.Add(24*time.Hour - time.Second)

	if validUpto.Before(validFrom) {
		return time.Time{}, time.Time{}, errors.NewValidationError("valid_upto must not be before valid_from")
	}

	return validFrom, validUpto, nil
}
