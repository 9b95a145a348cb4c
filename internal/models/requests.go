package models

import (
	"time"

	"github.com/google/uuid"
)

// CreateCouponRequest represents a request to create a coupon
type CreateCouponRequest struct {
	Code          string       `json:"code" binding:"required"`
	DiscountType  DiscountType `json:"discount_type" binding:"required,oneof=PERCENTAGE FIXED"`
	DiscountValue int64        `json:"discount_value" binding:"required,min=1"`
	MinOrderCents int64        `json:"min_order_cents" binding:"min=0"`
	MaxUsageCount int          `json:"max_usage_count" binding:"required,min=1"`
	ValidFrom     string       `json:"valid_from" binding:"required"` // YYYY-MM-DD
	ValidUpto     string       `json:"valid_upto" binding:"required"`
}

// ValidateCouponRequest represents a dry-run coupon validation
type ValidateCouponRequest struct {
	Code       string `json:"code" binding:"required"`
	OrderCents int64  `json:"order_cents" binding:"required,min=1"`
}

// CouponQuote is the outcome of validating a coupon against an order amount
type CouponQuote struct {
	Code          string `json:"code"`
	DiscountCents int64  `json:"discount_cents"`
	FinalCents    int64  `json:"final_cents"`
}

// RedeemResult is the outcome of an atomic coupon redemption
type RedeemResult struct {
	Code          string `json:"code"`
	UsageCount    int    `json:"usage_count"`
	DiscountCents int64  `json:"discount_cents"`
	FinalCents    int64  `json:"final_cents"`
}

// CreatePlanRequest represents an insurance enrollment
type CreatePlanRequest struct {
	OwnerID           string   `json:"owner_id" binding:"required"`
	TotalCents        int64    `json:"total_cents" binding:"required,min=1"`
	CoveragePercent   int      `json:"coverage_percent" binding:"required,min=1,max=100"`
	MaxClaimCents     int64    `json:"max_claim_cents" binding:"min=0"`
	CoveredTreatments []string `json:"covered_treatments"`
	ValidFrom         string   `json:"valid_from" binding:"required"` // YYYY-MM-DD
	ValidUpto         string   `json:"valid_upto" binding:"required"`
}

// ValidateCoverageRequest represents a dry-run coverage projection
type ValidateCoverageRequest struct {
	TreatmentCents int64  `json:"treatment_cents" binding:"required,min=1"`
	TreatmentType  string `json:"treatment_type"`
}

// CoverageResult is the dry-run projection of what a plan would cover.
// It never reflects a balance mutation.
type CoverageResult struct {
	Covered         bool  `json:"covered"`
	PartialCoverage bool  `json:"partial_coverage"`
	CoveredCents    int64 `json:"covered_cents"`
	RemainingCents  int64 `json:"remaining_cents"`
}

// SubmitClaimRequest represents a new claim submission
type SubmitClaimRequest struct {
	ClaimCents  int64  `json:"claim_cents" binding:"required"`
	Description string `json:"description"`
}

// ApproveClaimRequest carries the authorizer's approved amount
type ApproveClaimRequest struct {
	ApprovedCents int64 `json:"approved_cents" binding:"required,min=1"`
}

// ApproveClaimResult reports the approval and the plan balance left behind
type ApproveClaimResult struct {
	ClaimID               uuid.UUID `json:"claim_id"`
	ApprovedCents         int64     `json:"approved_cents"`
	RemainingBalanceCents int64     `json:"remaining_balance_cents"`
}

// RejectClaimRequest carries the authorizer's rejection reason
type RejectClaimRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreatePaymentRequest represents a booking-charge payment creation
type CreatePaymentRequest struct {
	BookingID  string `json:"booking_id" binding:"required"`
	RequestID  string `json:"request_id" binding:"required"`
	// Zero is a valid amount: a fully covered charge still opens a payment.
	TotalCents int64 `json:"total_cents" binding:"min=0"`
}

// GatewayResultRequest is the webhook/poll outcome reported for a
// transaction. TransactionID is required on the first report for a gateway
// ID, which binds the gateway ID to the transaction; replays are matched by
// gateway ID alone.
type GatewayResultRequest struct {
	GatewayTransactionID string            `json:"gateway_transaction_id" binding:"required"`
	TransactionID        *uuid.UUID        `json:"transaction_id,omitempty"`
	Status               TransactionStatus `json:"status" binding:"required"`
	Event                GatewayEvent      `json:"event"`
}

// MarkPaidRequest settles an invoice against a completed transaction
type MarkPaidRequest struct {
	TransactionID uuid.UUID `json:"transaction_id" binding:"required"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
}

// AddAdjustmentRequest appends a correction to a paid invoice
type AddAdjustmentRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
}

// SettleRequest drives the reconciliation orchestrator for one booking charge
type SettleRequest struct {
	BookingID       string     `json:"booking_id" binding:"required"`
	RequestID       string     `json:"request_id" binding:"required"`
	BaseCents       int64      `json:"base_cents" binding:"required,min=1"`
	CouponCode      string     `json:"coupon_code"`
	InsurancePlanID *uuid.UUID `json:"insurance_plan_id"`
	TreatmentType   string     `json:"treatment_type"`
}

// SettleResult reports what the orchestrator durably applied
type SettleResult struct {
	BookingID      string          `json:"booking_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	InvoiceID      uuid.UUID       `json:"invoice_id"`
	BaseCents      int64           `json:"base_cents"`
	DiscountCents  int64           `json:"discount_cents"`
	Coverage       *CoverageResult `json:"coverage,omitempty"`
	PatientCents   int64           `json:"patient_cents"`
	CouponRedeemed bool            `json:"coupon_redeemed"`
	AlreadySettled bool            `json:"already_settled"`
}

// HealthCheck represents the health status of the service
type HealthCheck struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
}
