package service

import (
	"context"
	"database/sql"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/google/uuid"
)

// insuranceService implements InsuranceService
type insuranceService struct {
	db            Database
	insuranceRepo repository.InsuranceRepository
	claimRepo     repository.ClaimRepository
	auditRepo     repository.AuditRepository
	cfg           *config.SettlementConfig
}

// NewInsuranceService creates a new insurance service
func NewInsuranceService(deps *Dependencies) InsuranceService {
	return &insuranceService{
		db:            deps.DB,
		insuranceRepo: deps.InsuranceRepo,
		claimRepo:     deps.ClaimRepo,
		auditRepo:     deps.AuditRepo,
		cfg:           &deps.Config.Settlement,
	}
}

func (s *insuranceService) CreatePlan(ctx context.Context, req *models.CreatePlanRequest) (*models.InsurancePlan, error) {
	validFrom, validUpto, err := parseValidity(req.ValidFrom, req.ValidUpto)
	if err != nil {
		return nil, err
	}

	plan := &models.InsurancePlan{
		ID:                uuid.New(),
		OwnerID:           req.OwnerID,
		TotalCents:        req.TotalCents,
		BalanceCents:      req.TotalCents,
		CoveragePercent:   req.CoveragePercent,
		MaxClaimCents:     req.MaxClaimCents,
		CoveredTreatments: req.CoveredTreatments,
		ValidFrom:         validFrom,
		ValidUpto:         validUpto,
		Status:            models.PlanStatusActive,
		Version:           1,
	}

	if err := s.insuranceRepo.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "insurance_plan", plan.ID.String(), "created", nil, plan)

	logger.WithContext(ctx).
		WithField("plan_id", plan.ID).
		WithField("total_cents", plan.TotalCents).
		Info("Insurance plan created")
	return plan, nil
}

func (s *insuranceService) GetPlan(ctx context.Context, planID uuid.UUID) (*models.InsurancePlan, error) {
	return s.insuranceRepo.GetPlan(ctx, planID)
}

func (s *insuranceService) CancelPlan(ctx context.Context, planID uuid.UUID) error {
	if err := s.insuranceRepo.CancelPlan(ctx, planID); err != nil {
		return err
	}

	recordAudit(ctx, s.auditRepo, nil, "insurance_plan", planID.String(), "cancelled",
		map[string]any{"status": models.PlanStatusActive},
		map[string]any{"status": models.PlanStatusCancelled})
	return nil
}

// ValidateCoverage projects what the plan would pay for a treatment without
// touching the balance. Coverage is the coverage percentage of the treatment
// cost, clipped by the per-claim maximum. Only the balance can cap the payout
// below that; that cap is the one case that marks the coverage partial and
// leaves the patient a remainder.
func (s *insuranceService) ValidateCoverage(ctx context.Context, planID uuid.UUID, req *models.ValidateCoverageRequest) (*models.CoverageResult, error) {
	if req.TreatmentCents <= 0 {
		return nil, errors.NewValidationError("treatment amount must be positive")
	}

	plan, err := s.insuranceRepo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := checkPlanUsable(plan); err != nil {
		return nil, err
	}

	if req.TreatmentType != "" && !plan.CoversTreatment(req.TreatmentType) {
		return &models.CoverageResult{
			Covered:        false,
			RemainingCents: req.TreatmentCents,
		}, nil
	}

	covered := req.TreatmentCents * int64(plan.CoveragePercent) / 100
	if plan.MaxClaimCents > 0 && covered > plan.MaxClaimCents {
		covered = plan.MaxClaimCents
	}

	partial := false
	var remaining int64
	if covered > plan.BalanceCents {
		covered = plan.BalanceCents
		partial = true
		remaining = req.TreatmentCents - plan.BalanceCents
	}

	if covered <= 0 {
		return &models.CoverageResult{
			Covered:        false,
			RemainingCents: req.TreatmentCents,
		}, nil
	}

	return &models.CoverageResult{
		Covered:         true,
		PartialCoverage: partial,
		CoveredCents:    covered,
		RemainingCents:  remaining,
	}, nil
}

func (s *insuranceService) SubmitClaim(ctx context.Context, planID uuid.UUID, req *models.SubmitClaimRequest) (*models.Claim, error) {
	if req.ClaimCents <= 0 {
		return nil, errors.NewValidationError("claim amount must be positive")
	}

	plan, err := s.insuranceRepo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if err := checkPlanUsable(plan); err != nil {
		return nil, err
	}

	if plan.MaxClaimCents > 0 && req.ClaimCents > plan.MaxClaimCents {
		return nil, errors.NewValidationError("claim amount exceeds the plan's per-claim maximum")
	}

	claim := &models.Claim{
		ID:          uuid.New(),
		InsuranceID: planID,
		ClaimCents:  req.ClaimCents,
		Description: req.Description,
		Status:      models.ClaimStatusSubmitted,
		SubmittedAt: time.Now(),
	}

	if err := s.claimRepo.Create(ctx, claim); err != nil {
		return nil, err
	}

	if err := s.insuranceRepo.IncrementSubmitted(ctx, planID); err != nil {
		logger.WithContext(ctx).WithError(err).
			WithField("plan_id", planID).
			Warn("Failed to increment submitted claim counter")
	}

	recordAudit(ctx, s.auditRepo, nil, "claim", claim.ID.String(), "submitted", nil, claim)

	logger.WithContext(ctx).
		WithField("claim_id", claim.ID).
		WithField("plan_id", planID).
		WithField("claim_cents", claim.ClaimCents).
		Info("Claim submitted")
	return claim, nil
}

func (s *insuranceService) GetClaim(ctx context.Context, claimID uuid.UUID) (*models.Claim, error) {
	return s.claimRepo.GetByID(ctx, claimID)
}

// ApproveClaim deducts the approved amount from the plan balance and marks
// the claim approved, atomically. The deduction is guarded by the plan
// version and the balance at the moment of the update; when another approval
// slips in between the read and the write, the whole attempt is retried a
// bounded number of times against the fresh state.
func (s *insuranceService) ApproveClaim(ctx context.Context, claimID uuid.UUID, approvedCents int64) (*models.ApproveClaimResult, error) {
	if approvedCents <= 0 {
		return nil, errors.NewValidationError("approved amount must be positive")
	}

	var result *models.ApproveClaimResult
	var lastErr error

	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		if attempt > 0 {
			metrics.ConflictRetries.WithLabelValues("approve_claim").Inc()
			time.Sleep(s.cfg.RetryDelay)
		}

		result, lastErr = s.approveOnce(ctx, claimID, approvedCents)
		if lastErr == nil {
			metrics.ClaimsDecided.WithLabelValues("approved").Inc()
			return result, nil
		}

		if !errors.IsCode(lastErr, errors.ErrCodeConcurrencyConflict) {
			break
		}

		logger.WithContext(ctx).
			WithField("claim_id", claimID).
			WithField("attempt", attempt+1).
			Warn("Claim approval hit a concurrent plan update, retrying")
	}

	if errors.IsCode(lastErr, errors.ErrCodeInsufficientBalance) {
		metrics.ClaimsInsufficientBalance.Inc()
	}
	return nil, lastErr
}

func (s *insuranceService) approveOnce(ctx context.Context, claimID uuid.UUID, approvedCents int64) (*models.ApproveClaimResult, error) {
	var result *models.ApproveClaimResult

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		claim, err := s.claimRepo.GetByIDForUpdate(ctx, tx, claimID)
		if err != nil {
			return err
		}

		if claim.Decided() {
			return errors.ErrClaimAlreadyDecided
		}

		if approvedCents > claim.ClaimCents {
			return errors.NewValidationError("approved amount cannot exceed the claimed amount")
		}

		plan, err := s.insuranceRepo.GetPlan(ctx, claim.InsuranceID)
		if err != nil {
			return err
		}

		if err := checkPlanUsable(plan); err != nil {
			return err
		}

		remaining, err := s.insuranceRepo.ApproveDeduct(ctx, tx, plan.ID, approvedCents, plan.Version)
		if err != nil {
			return err
		}

		decidedAt := time.Now()
		if err := s.claimRepo.Approve(ctx, tx, claimID, approvedCents, decidedAt); err != nil {
			return err
		}

		recordAudit(ctx, s.auditRepo, tx, "claim", claimID.String(), "approved",
			map[string]any{"status": models.ClaimStatusSubmitted, "balance_cents": plan.BalanceCents},
			map[string]any{"status": models.ClaimStatusApproved, "approved_cents": approvedCents, "balance_cents": remaining})

		result = &models.ApproveClaimResult{
			ClaimID:               claimID,
			ApprovedCents:         approvedCents,
			RemainingBalanceCents: remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).
		WithField("claim_id", claimID).
		WithField("approved_cents", approvedCents).
		WithField("remaining_balance_cents", result.RemainingBalanceCents).
		Info("Claim approved")
	return result, nil
}

// RejectClaim marks the claim rejected without touching the plan balance.
func (s *insuranceService) RejectClaim(ctx context.Context, claimID uuid.UUID, reason string) (*models.Claim, error) {
	if reason == "" {
		return nil, errors.NewValidationError("rejection reason is required")
	}

	var rejected *models.Claim

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		claim, err := s.claimRepo.GetByIDForUpdate(ctx, tx, claimID)
		if err != nil {
			return err
		}

		if claim.Decided() {
			return errors.ErrClaimAlreadyDecided
		}

		decidedAt := time.Now()
		if err := s.claimRepo.Reject(ctx, tx, claimID, reason, decidedAt); err != nil {
			return err
		}

		if err := s.insuranceRepo.IncrementRejected(ctx, tx, claim.InsuranceID); err != nil {
			return err
		}

		recordAudit(ctx, s.auditRepo, tx, "claim", claimID.String(), "rejected",
			map[string]any{"status": models.ClaimStatusSubmitted},
			map[string]any{"status": models.ClaimStatusRejected, "reason": reason})

		claim.Status = models.ClaimStatusRejected
		claim.RejectionReason = &reason
		claim.DecidedAt = &decidedAt
		rejected = claim
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ClaimsDecided.WithLabelValues("rejected").Inc()
	logger.WithContext(ctx).
		WithField("claim_id", claimID).
		Info("Claim rejected")
	return rejected, nil
}

func checkPlanUsable(plan *models.InsurancePlan) error {
	if plan.Status == models.PlanStatusCancelled {
		return errors.ErrPlanInactive
	}
	now := time.Now()
	if now.Before(plan.ValidFrom) {
		return errors.ErrPlanInactive
	}
	if plan.Status == models.PlanStatusExpired || now.After(plan.ValidUpto) {
		return errors.ErrPlanExpired
	}
	return nil
}
