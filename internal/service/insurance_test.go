package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPlan(t *testing.T, env *testEnv, plan *models.InsurancePlan) *models.InsurancePlan {
	t.Helper()
	if plan.ValidFrom.IsZero() {
		plan.ValidFrom = time.Now().Add(-time.Hour)
	}
	if plan.ValidUpto.IsZero() {
		plan.ValidUpto = time.Now().Add(365 * 24 * time.Hour)
	}
	if plan.Status == "" {
		plan.Status = models.PlanStatusActive
	}
	wantBalance := plan.BalanceCents
	if plan.TotalCents == 0 {
		plan.TotalCents = wantBalance
	}
	require.NoError(t, env.plans.CreatePlan(context.Background(), plan))
	// CreatePlan resets the balance to the total; deduct back down to the
	// balance the scenario asked for.
	if deduct := plan.TotalCents - wantBalance; deduct > 0 {
		stored, err := env.plans.GetPlan(context.Background(), plan.ID)
		require.NoError(t, err)
		_, err = env.plans.ApproveDeduct(context.Background(), nil, plan.ID, deduct, stored.Version)
		require.NoError(t, err)
	}
	stored, err := env.plans.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Equal(t, wantBalance, stored.BalanceCents)
	plan.BalanceCents = wantBalance
	return plan
}

func seedClaim(t *testing.T, env *testEnv, planID uuid.UUID, cents int64) *models.Claim {
	t.Helper()
	claim := &models.Claim{
		ID:          newID(),
		InsuranceID: planID,
		ClaimCents:  cents,
		Status:      models.ClaimStatusSubmitted,
		SubmittedAt: time.Now(),
	}
	require.NoError(t, env.claims.Create(context.Background(), claim))
	return claim
}

func TestValidateCoverage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	t.Run("full coverage when the balance suffices", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p1",
			BalanceCents:    1000,
			CoveragePercent: 80,
		})

		result, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 1000,
		})
		require.NoError(t, err)
		assert.True(t, result.Covered)
		assert.False(t, result.PartialCoverage)
		assert.Equal(t, int64(800), result.CoveredCents)
		assert.Equal(t, int64(0), result.RemainingCents)
	})

	t.Run("partial coverage when the balance falls short", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p2",
			TotalCents:      1000,
			BalanceCents:    500,
			CoveragePercent: 80,
		})

		result, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 1000,
		})
		require.NoError(t, err)
		assert.True(t, result.Covered)
		assert.True(t, result.PartialCoverage)
		assert.Equal(t, int64(500), result.CoveredCents)
		assert.Equal(t, int64(500), result.RemainingCents)
	})

	t.Run("per-claim maximum clips the eligible amount", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p3",
			BalanceCents:    1000000,
			CoveragePercent: 90,
			MaxClaimCents:   30000,
		})

		result, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 100000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(30000), result.CoveredCents)
		// The per-claim cap limits the payout but the balance did not; no
		// patient remainder and no partial flag.
		assert.Equal(t, int64(0), result.RemainingCents)
		assert.False(t, result.PartialCoverage)
	})

	t.Run("uncovered treatment type pays nothing", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:                newID(),
			OwnerID:           "p4",
			BalanceCents:      100000,
			CoveragePercent:   80,
			CoveredTreatments: []string{"dental"},
		})

		result, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 50000,
			TreatmentType:  "cardiology",
		})
		require.NoError(t, err)
		assert.False(t, result.Covered)
		assert.Equal(t, int64(0), result.CoveredCents)
		assert.Equal(t, int64(50000), result.RemainingCents)
	})

	t.Run("never mutates the balance", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p5",
			BalanceCents:    77700,
			CoveragePercent: 50,
		})

		for i := 0; i < 5; i++ {
			_, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
				TreatmentCents: 10000,
			})
			require.NoError(t, err)
		}

		stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(77700), stored.BalanceCents)
	})

	t.Run("rejects plan before its validity window opens", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p7",
			BalanceCents:    1000,
			CoveragePercent: 80,
			ValidFrom:       time.Now().Add(24 * time.Hour),
			ValidUpto:       time.Now().Add(48 * time.Hour),
		})

		_, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 1000,
		})
		assert.ErrorIs(t, err, errors.ErrPlanInactive)

		_, err = env.services.Insurance.SubmitClaim(ctx, plan.ID, &models.SubmitClaimRequest{
			ClaimCents: 500,
		})
		assert.ErrorIs(t, err, errors.ErrPlanInactive)
	})

	t.Run("rejects cancelled plan", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p6",
			BalanceCents:    1000,
			CoveragePercent: 80,
		})
		require.NoError(t, env.services.Insurance.CancelPlan(ctx, plan.ID))

		_, err := env.services.Insurance.ValidateCoverage(ctx, plan.ID, &models.ValidateCoverageRequest{
			TreatmentCents: 1000,
		})
		assert.ErrorIs(t, err, errors.ErrPlanInactive)
	})
}

func TestSubmitClaim(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	plan := seedPlan(t, env, &models.InsurancePlan{
		ID:              newID(),
		OwnerID:         "p1",
		BalanceCents:    100000,
		CoveragePercent: 80,
		MaxClaimCents:   20000,
	})

	t.Run("creates a submitted claim", func(t *testing.T) {
		claim, err := env.services.Insurance.SubmitClaim(ctx, plan.ID, &models.SubmitClaimRequest{
			ClaimCents:  15000,
			Description: "root canal",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusSubmitted, claim.Status)
		assert.False(t, claim.Decided())

		stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TotalClaims)
	})

	t.Run("rejects amounts above the per-claim maximum", func(t *testing.T) {
		_, err := env.services.Insurance.SubmitClaim(ctx, plan.ID, &models.SubmitClaimRequest{
			ClaimCents: 25000,
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := env.services.Insurance.SubmitClaim(ctx, plan.ID, &models.SubmitClaimRequest{
			ClaimCents: 0,
		})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})
}

func TestApproveClaim(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	t.Run("deducts the balance and decides the claim", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p1",
			BalanceCents:    50000,
			CoveragePercent: 80,
		})
		claim := seedClaim(t, env, plan.ID, 20000)

		result, err := env.services.Insurance.ApproveClaim(ctx, claim.ID, 20000)
		require.NoError(t, err)
		assert.Equal(t, int64(20000), result.ApprovedCents)
		assert.Equal(t, int64(30000), result.RemainingBalanceCents)

		stored, err := env.services.Insurance.GetClaim(ctx, claim.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusApproved, stored.Status)
		require.NotNil(t, stored.ApprovedCents)
		assert.Equal(t, int64(20000), *stored.ApprovedCents)
		assert.NotNil(t, stored.DecidedAt)
	})

	t.Run("fails on insufficient balance leaving it unchanged", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p2",
			TotalCents:      50000,
			BalanceCents:    10000,
			CoveragePercent: 80,
		})
		claim := seedClaim(t, env, plan.ID, 20000)

		_, err := env.services.Insurance.ApproveClaim(ctx, claim.ID, 20000)
		assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

		stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), stored.BalanceCents)

		storedClaim, err := env.services.Insurance.GetClaim(ctx, claim.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusSubmitted, storedClaim.Status)
	})

	t.Run("rejects approving more than was claimed", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p3",
			BalanceCents:    50000,
			CoveragePercent: 80,
		})
		claim := seedClaim(t, env, plan.ID, 5000)

		_, err := env.services.Insurance.ApproveClaim(ctx, claim.ID, 6000)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("decides a claim at most once", func(t *testing.T) {
		plan := seedPlan(t, env, &models.InsurancePlan{
			ID:              newID(),
			OwnerID:         "p4",
			BalanceCents:    50000,
			CoveragePercent: 80,
		})
		claim := seedClaim(t, env, plan.ID, 5000)

		_, err := env.services.Insurance.ApproveClaim(ctx, claim.ID, 5000)
		require.NoError(t, err)

		_, err = env.services.Insurance.ApproveClaim(ctx, claim.ID, 5000)
		assert.ErrorIs(t, err, errors.ErrClaimAlreadyDecided)

		stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(45000), stored.BalanceCents)
	})
}

// Concurrent approvals against one plan must never drive the balance
// negative: winners drain it, the rest fail cleanly.
func TestApproveClaimConcurrentBalanceNonNegative(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	plan := seedPlan(t, env, &models.InsurancePlan{
		ID:              newID(),
		OwnerID:         "p1",
		BalanceCents:    50000,
		CoveragePercent: 80,
	})

	// Ten claims of 20000 against a 50000 balance: at most two approvals fit
	const claimCents = 20000
	const callers = 10

	claims := make([]*models.Claim, callers)
	for i := range claims {
		claims[i] = seedClaim(t, env, plan.ID, claimCents)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	approved := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(claim *models.Claim) {
			defer wg.Done()
			if _, err := env.services.Insurance.ApproveClaim(ctx, claim.ID, claimCents); err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}(claims[i])
	}
	wg.Wait()

	assert.Equal(t, 2, approved)

	stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.BalanceCents, int64(0))
	assert.Equal(t, int64(50000-2*claimCents), stored.BalanceCents)
	assert.Equal(t, 2, stored.ApprovedClaims)
}

func TestRejectClaim(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	plan := seedPlan(t, env, &models.InsurancePlan{
		ID:              newID(),
		OwnerID:         "p1",
		BalanceCents:    50000,
		CoveragePercent: 80,
	})

	t.Run("marks rejected without touching the balance", func(t *testing.T) {
		claim := seedClaim(t, env, plan.ID, 20000)

		rejected, err := env.services.Insurance.RejectClaim(ctx, claim.ID, "duplicate submission")
		require.NoError(t, err)
		assert.Equal(t, models.ClaimStatusRejected, rejected.Status)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "duplicate submission", *rejected.RejectionReason)

		stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(50000), stored.BalanceCents)
		assert.Equal(t, 1, stored.RejectedClaims)
	})

	t.Run("requires a reason", func(t *testing.T) {
		claim := seedClaim(t, env, plan.ID, 20000)
		_, err := env.services.Insurance.RejectClaim(ctx, claim.ID, "")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("cannot reject a decided claim", func(t *testing.T) {
		claim := seedClaim(t, env, plan.ID, 20000)
		_, err := env.services.Insurance.RejectClaim(ctx, claim.ID, "first decision")
		require.NoError(t, err)

		_, err = env.services.Insurance.RejectClaim(ctx, claim.ID, "second decision")
		assert.ErrorIs(t, err, errors.ErrClaimAlreadyDecided)
	})
}

func TestCancelPlan(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	plan := seedPlan(t, env, &models.InsurancePlan{
		ID:              newID(),
		OwnerID:         "p1",
		BalanceCents:    50000,
		CoveragePercent: 80,
	})

	require.NoError(t, env.services.Insurance.CancelPlan(ctx, plan.ID))

	stored, err := env.services.Insurance.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCancelled, stored.Status)

	// Cancelling twice is an invalid state, not a silent success
	err = env.services.Insurance.CancelPlan(ctx, plan.ID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidState))
}
