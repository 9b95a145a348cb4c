// Package models defines the domain models for the financial reconciliation core
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanStatus represents the lifecycle status of an insurance plan
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "ACTIVE"
	PlanStatusExpired   PlanStatus = "EXPIRED"
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

// InsurancePlan represents an enrolled insurance plan with a drawable balance.
// BalanceCents only ever decreases; every decrement is guarded against the
// balance at the moment of the update.
type InsurancePlan struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	OwnerID           string     `json:"owner_id" db:"owner_id"`
	TotalCents        int64      `json:"total_cents" db:"total_cents"`
	BalanceCents      int64      `json:"balance_cents" db:"balance_cents"`
	CoveragePercent   int        `json:"coverage_percent" db:"coverage_percent"`
	MaxClaimCents     int64      `json:"max_claim_cents" db:"max_claim_cents"`
	CoveredTreatments []string   `json:"covered_treatments" db:"covered_treatments"`
	ValidFrom         time.Time  `json:"valid_from" db:"valid_from"`
	ValidUpto         time.Time  `json:"valid_upto" db:"valid_upto"`
	Status            PlanStatus `json:"status" db:"status"`
	TotalClaims       int        `json:"total_claims" db:"total_claims"`
	ApprovedClaims    int        `json:"approved_claims" db:"approved_claims"`
	RejectedClaims    int        `json:"rejected_claims" db:"rejected_claims"`
	TotalClaimsCents  int64      `json:"total_claims_cents" db:"total_claims_cents"`
	Version           int        `json:"version" db:"version"` // for optimistic locking
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// CoversTreatment reports whether the plan covers the given treatment type.
// An empty covered list means the plan covers all treatments.
func (p *InsurancePlan) CoversTreatment(treatmentType string) bool {
	if len(p.CoveredTreatments) == 0 {
		return true
	}
	for _, t := range p.CoveredTreatments {
		if strings.EqualFold(t, treatmentType) {
			return true
		}
	}
	return false
}

// ClaimStatus represents the status of a claim
type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "SUBMITTED"
	ClaimStatusApproved  ClaimStatus = "APPROVED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
)

// Claim represents an insurance claim. A claim is decided exactly once and is
// immutable afterwards; a correction is a new submission, not a re-open.
type Claim struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	InsuranceID     uuid.UUID   `json:"insurance_id" db:"insurance_id"`
	ClaimCents      int64       `json:"claim_cents" db:"claim_cents"`
	Description     string      `json:"description" db:"description"`
	Status          ClaimStatus `json:"status" db:"status"`
	ApprovedCents   *int64      `json:"approved_cents,omitempty" db:"approved_cents"`
	RejectionReason *string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	SubmittedAt     time.Time   `json:"submitted_at" db:"submitted_at"`
	DecidedAt       *time.Time  `json:"decided_at,omitempty" db:"decided_at"`
}

// Decided reports whether the claim has reached a terminal status
func (c *Claim) Decided() bool {
	return c.Status != ClaimStatusSubmitted
}

// DiscountType represents how a coupon discount is computed
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// Coupon represents a discount code. UsageCount is monotonically increasing
// and never exceeds MaxUsageCount, even under concurrent redemption.
type Coupon struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Code          string       `json:"code" db:"code"` // stored upper-case, matched case-insensitively
	DiscountType  DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue int64        `json:"discount_value" db:"discount_value"`
	MinOrderCents int64        `json:"min_order_cents" db:"min_order_cents"`
	MaxUsageCount int          `json:"max_usage_count" db:"max_usage_count"`
	UsageCount    int          `json:"usage_count" db:"usage_count"`
	ValidFrom     time.Time    `json:"valid_from" db:"valid_from"`
	ValidUpto     time.Time    `json:"valid_upto" db:"valid_upto"`
	IsActive      bool         `json:"is_active" db:"is_active"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// DiscountFor computes the discount the coupon grants on the given order
// amount. The discount never exceeds the order amount itself.
func (c *Coupon) DiscountFor(orderCents int64) int64 {
	var discount int64
	switch c.DiscountType {
	case DiscountTypePercentage:
		discount = orderCents * c.DiscountValue / 100
	case DiscountTypeFixed:
		discount = c.DiscountValue
	}
	if discount > orderCents {
		discount = orderCents
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// TransactionStatus represents the status of a gateway transaction
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"
	TransactionStatusRefunded   TransactionStatus = "REFUNDED"
)

// ValidStatusTransitions is the strictly forward transition graph for
// transactions. COMPLETED -> REFUNDED is the only transition out of a
// terminal status.
var ValidStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusCancelled},
	TransactionStatusProcessing: {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted:  {TransactionStatusRefunded},
}

// CanTransitionTo reports whether a transaction may move from current to target
func CanTransitionTo(current, target TransactionStatus) bool {
	allowed, exists := ValidStatusTransitions[current]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Terminal reports whether a status permits no further transitions at all
func Terminal(status TransactionStatus) bool {
	return len(ValidStatusTransitions[status]) == 0
}

// Transaction records one attempt to move money through a payment gateway
type Transaction struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	PaymentID            uuid.UUID         `json:"payment_id" db:"payment_id"`
	TransactionNumber    string            `json:"transaction_number" db:"transaction_number"`
	AmountCents          int64             `json:"amount_cents" db:"amount_cents"`
	GatewayTransactionID *string           `json:"gateway_transaction_id,omitempty" db:"gateway_transaction_id"`
	Status               TransactionStatus `json:"status" db:"status"`
	GatewayResponse      map[string]any    `json:"gateway_response,omitempty" db:"gateway_response"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty" db:"processed_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// Payment is the booking-facing record owning a chronological chain of
// transactions. It stores no status of its own.
type Payment struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	BookingID    string         `json:"booking_id" db:"booking_id"`
	RequestID    string         `json:"request_id" db:"request_id"`
	TotalCents   int64          `json:"total_cents" db:"total_cents"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
	Transactions []*Transaction `json:"transactions,omitempty"`
}

// Status derives the payment's externally-visible status from its most recent
// transaction. A payment is never persisted without at least one transaction.
func (p *Payment) Status() TransactionStatus {
	if len(p.Transactions) == 0 {
		return TransactionStatusPending
	}
	return p.Transactions[len(p.Transactions)-1].Status
}

// Latest returns the most recent transaction in the chain, or nil
func (p *Payment) Latest() *Transaction {
	if len(p.Transactions) == 0 {
		return nil
	}
	return p.Transactions[len(p.Transactions)-1]
}

// InvoiceStatus represents the lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
)

// Invoice is the billing document derived from a payment. Once paid it is
// frozen; corrections are appended as InvoiceAdjustment records.
type Invoice struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	BookingID     string        `json:"booking_id" db:"booking_id"`
	InvoiceNumber string        `json:"invoice_number" db:"invoice_number"`
	TotalCents    int64         `json:"total_cents" db:"total_cents"`
	Status        InvoiceStatus `json:"status" db:"status"`
	FinalizedAt   *time.Time    `json:"finalized_at,omitempty" db:"finalized_at"`
	PaidAt        *time.Time    `json:"paid_at,omitempty" db:"paid_at"`
	PaymentMethod *string       `json:"payment_method,omitempty" db:"payment_method"`
	TransactionID *uuid.UUID    `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// InvoiceAdjustment is an append-only correction against a paid invoice
type InvoiceAdjustment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id" db:"invoice_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"` // signed; negative = credit
	Reason      string    `json:"reason" db:"reason"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// OutboxStatus represents the dispatch status of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

// OutboxEvent is a notification written in the same database transaction as
// the financial state change it announces. A background dispatcher publishes
// it to the message broker; dispatch failure never rolls back financial state.
type OutboxEvent struct {
	ID         int64        `json:"id" db:"id"`
	EventKey   string       `json:"event_key" db:"event_key"`
	Topic      string       `json:"topic" db:"topic"`
	Payload    string       `json:"payload" db:"payload"` // JSON
	Status     OutboxStatus `json:"status" db:"status"`
	RetryCount int          `json:"retry_count" db:"retry_count"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}

// AuditEvent is an append-only record of a state transition. The core writes
// these and never reads them back.
type AuditEvent struct {
	ID         int64     `json:"id" db:"id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Action     string    `json:"action" db:"action"`
	Actor      string    `json:"actor" db:"actor"`
	Before     string    `json:"before,omitempty" db:"before"` // JSON snapshot
	After      string    `json:"after,omitempty" db:"after"`   // JSON snapshot
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
