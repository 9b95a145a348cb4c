// Package service provides business logic implementation
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Database is the transactional surface the services need from the
// database layer
type Database interface {
	WithTx(ctx context.Context, fn func(*sql.Tx) error) error
	Health(ctx context.Context) error
}

// CouponService validates and atomically redeems discount codes
type CouponService interface {
	Create(ctx context.Context, req *models.CreateCouponRequest) (*models.Coupon, error)
	Get(ctx context.Context, code string) (*models.Coupon, error)
	Validate(ctx context.Context, code string, orderCents int64) (*models.CouponQuote, error)
	Redeem(ctx context.Context, code string, orderCents int64) (*models.RedeemResult, error)
	ReleaseUsage(ctx context.Context, couponID uuid.UUID) error
	Deactivate(ctx context.Context, code string) error
}

// InsuranceService tracks plan balances, validates coverage, and decides claims
type InsuranceService interface {
	CreatePlan(ctx context.Context, req *models.CreatePlanRequest) (*models.InsurancePlan, error)
	GetPlan(ctx context.Context, planID uuid.UUID) (*models.InsurancePlan, error)
	CancelPlan(ctx context.Context, planID uuid.UUID) error
	ValidateCoverage(ctx context.Context, planID uuid.UUID, req *models.ValidateCoverageRequest) (*models.CoverageResult, error)
	SubmitClaim(ctx context.Context, planID uuid.UUID, req *models.SubmitClaimRequest) (*models.Claim, error)
	GetClaim(ctx context.Context, claimID uuid.UUID) (*models.Claim, error)
	ApproveClaim(ctx context.Context, claimID uuid.UUID, approvedCents int64) (*models.ApproveClaimResult, error)
	RejectClaim(ctx context.Context, claimID uuid.UUID, reason string) (*models.Claim, error)
}

// TransactionService records and advances gateway transactions
type TransactionService interface {
	Get(ctx context.Context, txnID uuid.UUID) (*models.Transaction, error)
	GetByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error)
	Transition(ctx context.Context, txnID uuid.UUID, target models.TransactionStatus, event *models.GatewayEvent) (*models.Transaction, error)
	Cancel(ctx context.Context, txnID uuid.UUID) (*models.Transaction, error)
}

// PaymentService owns the booking-facing payment record and its
// transaction chain
type PaymentService interface {
	Create(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	Retry(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
}

// InvoiceService manages the draft -> finalized -> paid billing document
type InvoiceService interface {
	Create(ctx context.Context, bookingID string, totalCents int64) (*models.Invoice, error)
	Get(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	Finalize(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error)
	MarkPaid(ctx context.Context, invoiceID uuid.UUID, req *models.MarkPaidRequest) (*models.Invoice, error)
	AddAdjustment(ctx context.Context, invoiceID uuid.UUID, req *models.AddAdjustmentRequest) (*models.InvoiceAdjustment, error)
}

// SettlementService sequences the ledgers for one booking charge
type SettlementService interface {
	SettleBookingCharge(ctx context.Context, req *models.SettleRequest) (*models.SettleResult, error)
	ApplyGatewayResult(ctx context.Context, req *models.GatewayResultRequest) (*models.Transaction, error)
}

// HealthService handles health check logic
type HealthService interface {
	Check(ctx context.Context) (*models.HealthCheck, error)
}

// Services contains all service implementations
type Services struct {
	Coupon      CouponService
	Insurance   InsuranceService
	Transaction TransactionService
	Payment     PaymentService
	Invoice     InvoiceService
	Settlement  SettlementService
	Health      HealthService
}

// Dependencies contains service dependencies
type Dependencies struct {
	DB              Database
	CouponRepo      repository.CouponRepository
	InsuranceRepo   repository.InsuranceRepository
	ClaimRepo       repository.ClaimRepository
	TransactionRepo repository.TransactionRepository
	PaymentRepo     repository.PaymentRepository
	InvoiceRepo     repository.InvoiceRepository
	OutboxRepo      repository.OutboxRepository
	AuditRepo       repository.AuditRepository
	RedisClient     *redis.Client
	Config          *config.Config
}

// NewServices creates a new services instance
func NewServices(deps *Dependencies) *Services {
	coupon := NewCouponService(deps)
	insurance := NewInsuranceService(deps)
	transaction := NewTransactionService(deps)
	payment := NewPaymentService(deps)
	invoice := NewInvoiceService(deps)

	return &Services{
		Coupon:      coupon,
		Insurance:   insurance,
		Transaction: transaction,
		Payment:     payment,
		Invoice:     invoice,
		Settlement:  NewSettlementService(deps, coupon, insurance, payment, transaction, invoice),
		Health:      NewHealthService(deps),
	}
}

// recordAudit writes an append-only audit event for a state transition.
// Audit failures are logged and swallowed; they never affect the financial
// outcome.
func recordAudit(ctx context.Context, repo repository.AuditRepository, tx *sql.Tx, entityType, entityID, action string, before, after any) {
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)

	event := &models.AuditEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actorFromContext(ctx),
		Before:     string(beforeJSON),
		After:      string(afterJSON),
	}

	if err := repo.Record(ctx, tx, event); err != nil {
		logger.WithContext(ctx).WithError(err).
			WithField("entity_type", entityType).
			WithField("action", action).
			Warn("Failed to record audit event")
	}
}

func actorFromContext(ctx context.Context) string {
	if requestID := ctx.Value(logger.RequestIDKey); requestID != nil {
		if s, ok := requestID.(string); ok {
			return s
		}
	}
	return "system"
}

// healthService implements HealthService
type healthService struct {
	db Database
}

// NewHealthService creates a new health service
func NewHealthService(deps *Dependencies) HealthService {
	return &healthService{db: deps.DB}
}

var startTime = time.Now()

func (s *healthService) Check(ctx context.Context) (*models.HealthCheck, error) {
	checks := make(map[string]string)

	if err := s.db.Health(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "unhealthy"
			break
		}
	}

	return &models.HealthCheck{
		Status:    status,
		Version:   "1.0.0",
		Checks:    checks,
		Uptime:    time.Since(startTime).String(),
		Timestamp: time.Now(),
	}, nil
}
