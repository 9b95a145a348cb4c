package service

import (
	"context"
	"encoding/json"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/errors"
	"medifin-backend/internal/lock"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// settlementService implements SettlementService. It sequences the coupon,
// insurance, payment and invoice ledgers for one booking charge and undoes
// the coupon redemption when a later step fails.
type settlementService struct {
	coupon      CouponService
	insurance   InsuranceService
	payment     PaymentService
	transaction TransactionService
	invoice     InvoiceService

	paymentRepo     repository.PaymentRepository
	transactionRepo repository.TransactionRepository
	invoiceRepo     repository.InvoiceRepository
	outboxRepo      repository.OutboxRepository

	redisClient *redis.Client
	cfg         *config.Config
}

// NewSettlementService creates a new settlement service
func NewSettlementService(deps *Dependencies, coupon CouponService, insurance InsuranceService, payment PaymentService, transaction TransactionService, invoice InvoiceService) SettlementService {
	return &settlementService{
		coupon:          coupon,
		insurance:       insurance,
		payment:         payment,
		transaction:     transaction,
		invoice:         invoice,
		paymentRepo:     deps.PaymentRepo,
		transactionRepo: deps.TransactionRepo,
		invoiceRepo:     deps.InvoiceRepo,
		outboxRepo:      deps.OutboxRepo,
		redisClient:     deps.RedisClient,
		cfg:             deps.Config,
	}
}

// SettleBookingCharge runs the settlement sequence for one booking charge:
// redeem the coupon, project insurance coverage on the discounted amount,
// open a payment for the patient remainder, and draft the invoice. Each step
// is durable on its own; if a step after the coupon redemption fails, the
// consumed usage slot is released best-effort.
//
// The call is idempotent per request ID. A distributed lock serializes
// concurrent settles for the same booking, and an existing payment for the
// request ID short-circuits to the recorded outcome.
func (s *settlementService) SettleBookingCharge(ctx context.Context, req *models.SettleRequest) (*models.SettleResult, error) {
	if req.BaseCents <= 0 {
		return nil, errors.NewValidationError("base amount must be positive")
	}

	ctx = context.WithValue(ctx, logger.BookingIDKey, req.BookingID)
	start := time.Now()

	if s.redisClient != nil {
		settleLock := lock.NewSettlementLock(s.redisClient, req.BookingID, req.RequestID, s.cfg.Settlement.LockTTL)
		if err := settleLock.Lock(ctx, s.cfg.Settlement.LockRetryDelay, s.cfg.Settlement.LockRetries); err != nil {
			metrics.SettlementsTotal.WithLabelValues("lock_contended").Inc()
			return nil, errors.NewConcurrencyError("another settlement for this booking is in progress")
		}
		defer func() {
			if err := settleLock.Unlock(context.Background()); err != nil {
				logger.WithBooking(req.BookingID).WithError(err).Warn("Failed to release settlement lock")
			}
		}()
	}

	if existing, err := s.replayOutcome(ctx, req); err != nil {
		return nil, err
	} else if existing != nil {
		metrics.SettlementsTotal.WithLabelValues("replayed").Inc()
		return existing, nil
	}

	result, err := s.settle(ctx, req)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

// replayOutcome reconstructs the result of a previous settle for the same
// request ID, if one got far enough to create the payment.
func (s *settlementService) replayOutcome(ctx context.Context, req *models.SettleRequest) (*models.SettleResult, error) {
	payment, err := s.paymentRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}

	logger.WithContext(ctx).
		WithField("request_id", req.RequestID).
		WithField("payment_id", payment.ID).
		Info("Settlement replayed, returning recorded outcome")

	result := &models.SettleResult{
		BookingID:      req.BookingID,
		PaymentID:      payment.ID,
		BaseCents:      req.BaseCents,
		PatientCents:   payment.TotalCents,
		AlreadySettled: true,
	}

	invoice, err := s.invoiceRepo.GetLatestByBookingID(ctx, req.BookingID)
	if err != nil && !errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}
	if invoice != nil {
		result.InvoiceID = invoice.ID
	}
	return result, nil
}

func (s *settlementService) settle(ctx context.Context, req *models.SettleRequest) (*models.SettleResult, error) {
	result := &models.SettleResult{
		BookingID: req.BookingID,
		BaseCents: req.BaseCents,
	}
	remainder := req.BaseCents

	var redeemedCouponID *uuid.UUID
	if req.CouponCode != "" {
		coupon, err := s.coupon.Get(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}

		redeemed, err := s.coupon.Redeem(ctx, req.CouponCode, remainder)
		if err != nil {
			return nil, err
		}

		redeemedCouponID = &coupon.ID
		result.DiscountCents = redeemed.DiscountCents
		result.CouponRedeemed = true
		remainder = redeemed.FinalCents
	}

	if req.InsurancePlanID != nil && remainder > 0 {
		coverage, err := s.insurance.ValidateCoverage(ctx, *req.InsurancePlanID, &models.ValidateCoverageRequest{
			TreatmentCents: remainder,
			TreatmentType:  req.TreatmentType,
		})
		if err != nil {
			s.compensateCoupon(ctx, redeemedCouponID, "coverage validation failed")
			return nil, err
		}

		result.Coverage = coverage
		remainder = coverage.RemainingCents
	}

	payment, err := s.payment.Create(ctx, &models.CreatePaymentRequest{
		BookingID:  req.BookingID,
		RequestID:  req.RequestID,
		TotalCents: remainder,
	})
	if err != nil {
		s.compensateCoupon(ctx, redeemedCouponID, "payment creation failed")
		return nil, err
	}
	result.PaymentID = payment.ID

	invoice, err := s.invoice.Create(ctx, req.BookingID, payment.TotalCents)
	if err != nil {
		s.compensateCoupon(ctx, redeemedCouponID, "invoice creation failed")
		return nil, err
	}
	result.InvoiceID = invoice.ID
	result.PatientCents = payment.TotalCents

	s.emitEvent(ctx, "settlement.opened", req.BookingID, map[string]any{
		"booking_id":     req.BookingID,
		"payment_id":     payment.ID,
		"invoice_id":     invoice.ID,
		"base_cents":     req.BaseCents,
		"discount_cents": result.DiscountCents,
		"patient_cents":  result.PatientCents,
	})

	logger.WithContext(ctx).
		WithField("payment_id", payment.ID).
		WithField("invoice_id", invoice.ID).
		WithField("patient_cents", result.PatientCents).
		Info("Booking charge settled")
	return result, nil
}

// ApplyGatewayResult applies a gateway outcome to its transaction. Replaying
// an already-applied terminal status is a no-op success. When a transaction
// reaches completed, the booking's invoice is finalized and marked paid; on
// failed, the invoice stays draft so the payment can be retried.
func (s *settlementService) ApplyGatewayResult(ctx context.Context, req *models.GatewayResultRequest) (*models.Transaction, error) {
	txn, err := s.resolveTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	if txn.Status == req.Status {
		logger.WithContext(ctx).
			WithField("transaction_id", txn.ID).
			WithField("status", txn.Status).
			Info("Gateway result replayed, transaction already in reported status")
		return txn, nil
	}

	// Collapsed webhooks report a terminal outcome for a transaction that
	// never saw the authorization event. Step through processing first.
	if txn.Status == models.TransactionStatusPending &&
		(req.Status == models.TransactionStatusCompleted || req.Status == models.TransactionStatusFailed) {
		if txn, err = s.transaction.Transition(ctx, txn.ID, models.TransactionStatusProcessing, nil); err != nil {
			return nil, err
		}
	}

	txn, err = s.transaction.Transition(ctx, txn.ID, req.Status, &req.Event)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case models.TransactionStatusCompleted:
		if err := s.settleInvoice(ctx, txn); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("transaction_id", txn.ID).
				Error("Transaction completed but invoice settlement failed")
			return nil, err
		}
		s.emitEvent(ctx, "payment.completed", txn.PaymentID.String(), map[string]any{
			"payment_id":     txn.PaymentID,
			"transaction_id": txn.ID,
			"amount_cents":   txn.AmountCents,
		})
	case models.TransactionStatusFailed:
		s.emitEvent(ctx, "payment.failed", txn.PaymentID.String(), map[string]any{
			"payment_id":     txn.PaymentID,
			"transaction_id": txn.ID,
		})
	}

	return txn, nil
}

// resolveTransaction finds the transaction a gateway result belongs to,
// binding the gateway ID on first contact.
func (s *settlementService) resolveTransaction(ctx context.Context, req *models.GatewayResultRequest) (*models.Transaction, error) {
	txn, err := s.transactionRepo.GetByGatewayID(ctx, req.GatewayTransactionID)
	if err == nil {
		return txn, nil
	}
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	if req.TransactionID == nil {
		return nil, errors.ErrTransactionNotFound
	}

	if err := s.transactionRepo.SetGatewayID(ctx, *req.TransactionID, req.GatewayTransactionID); err != nil {
		return nil, err
	}
	return s.transactionRepo.GetByID(ctx, *req.TransactionID)
}

// settleInvoice walks a completed transaction back to the booking's invoice
// and moves it draft -> finalized -> paid. A concurrent webhook replay may
// have finalized it already; that state is accepted.
func (s *settlementService) settleInvoice(ctx context.Context, txn *models.Transaction) error {
	payment, err := s.paymentRepo.GetByID(ctx, txn.PaymentID)
	if err != nil {
		return err
	}

	invoice, err := s.invoiceRepo.GetLatestByBookingID(ctx, payment.BookingID)
	if err != nil {
		return err
	}

	if invoice.Status == models.InvoiceStatusPaid {
		return nil
	}

	if invoice.Status == models.InvoiceStatusDraft {
		if _, err := s.invoice.Finalize(ctx, invoice.ID); err != nil && !errors.IsCode(err, errors.ErrCodeInvalidState) {
			return err
		}
	}

	if _, err := s.invoice.MarkPaid(ctx, invoice.ID, &models.MarkPaidRequest{
		TransactionID: txn.ID,
		PaymentMethod: "gateway",
	}); err != nil {
		if errors.IsCode(err, errors.ErrCodeImmutable) {
			return nil
		}
		return err
	}

	s.emitEvent(ctx, "invoice.paid", invoice.ID.String(), map[string]any{
		"invoice_id":     invoice.ID,
		"booking_id":     payment.BookingID,
		"transaction_id": txn.ID,
	})
	return nil
}

// compensateCoupon releases a redeemed usage slot after a downstream step
// failed. Best-effort: a release failure is logged, never returned, because
// the settlement error itself is what the caller needs to see.
func (s *settlementService) compensateCoupon(ctx context.Context, couponID *uuid.UUID, reason string) {
	if couponID == nil {
		return
	}

	metrics.CompensationsTotal.WithLabelValues("coupon_release").Inc()
	if err := s.coupon.ReleaseUsage(ctx, *couponID); err != nil {
		logger.WithContext(ctx).WithError(err).
			WithField("coupon_id", *couponID).
			WithField("reason", reason).
			Error("Coupon compensation failed, usage slot leaked")
		return
	}

	logger.WithContext(ctx).
		WithField("coupon_id", *couponID).
		WithField("reason", reason).
		Info("Coupon usage released after settlement failure")
}

// emitEvent writes an outbox notification. The financial state is already
// durable when this runs; a write failure costs a notification, not money.
func (s *settlementService) emitEvent(ctx context.Context, topicSuffix, key string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	event := &models.OutboxEvent{
		EventKey: key,
		Topic:    s.cfg.Kafka.NotificationTopic + "." + topicSuffix,
		Payload:  string(body),
	}

	if err := s.outboxRepo.Create(ctx, nil, event); err != nil {
		logger.WithContext(ctx).WithError(err).
			WithField("topic", event.Topic).
			Warn("Failed to write outbox event")
	}
}
