package service

import (
	"context"
	"database/sql"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"
	"medifin-backend/pkg/idgen"

	"github.com/google/uuid"
)

// paymentService implements PaymentService
type paymentService struct {
	db              Database
	paymentRepo     repository.PaymentRepository
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditRepository
}

// NewPaymentService creates a new payment service
func NewPaymentService(deps *Dependencies) PaymentService {
	return &paymentService{
		db:              deps.DB,
		paymentRepo:     deps.PaymentRepo,
		transactionRepo: deps.TransactionRepo,
		auditRepo:       deps.AuditRepo,
	}
}

// Create opens a payment for a booking charge together with its first
// pending transaction, in one database transaction. The request ID makes the
// call idempotent: replaying a request returns the payment it created.
func (s *paymentService) Create(ctx context.Context, req *models.CreatePaymentRequest) (*models.Payment, error) {
	// Zero is allowed: a fully covered booking charge still gets a payment
	// record so the invoice settlement path stays uniform.
	if req.TotalCents < 0 {
		return nil, errors.NewValidationError("payment amount cannot be negative")
	}

	existing, err := s.paymentRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.WithContext(ctx).
			WithField("request_id", req.RequestID).
			WithField("payment_id", existing.ID).
			Info("Payment creation replayed, returning existing payment")
		return s.attachTransactions(ctx, existing)
	}

	payment := &models.Payment{
		ID:         uuid.New(),
		BookingID:  req.BookingID,
		RequestID:  req.RequestID,
		TotalCents: req.TotalCents,
	}

	txn := &models.Transaction{
		ID:                uuid.New(),
		PaymentID:         payment.ID,
		TransactionNumber: idgen.GenerateTransactionNumber(),
		AmountCents:       req.TotalCents,
		Status:            models.TransactionStatusPending,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.transactionRepo.Create(ctx, tx, txn); err != nil {
			return err
		}
		recordAudit(ctx, s.auditRepo, tx, "payment", payment.ID.String(), "created", nil, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payment.Transactions = []*models.Transaction{txn}

	logger.WithContext(ctx).
		WithField("payment_id", payment.ID).
		WithField("booking_id", payment.BookingID).
		WithField("total_cents", payment.TotalCents).
		Info("Payment created")
	return payment, nil
}

func (s *paymentService) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return s.attachTransactions(ctx, payment)
}

// Retry appends a fresh pending transaction to a payment whose latest
// transaction failed. Any other latest status means the payment is either
// still in flight or already settled, and retrying is an invalid state.
// The status check here is advisory: the unique index over a payment's
// non-terminal transactions is what makes concurrent retries collapse to one
// winner, surfaced as a conflict from the insert.
func (s *paymentService) Retry(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	latest := payment.Latest()
	if latest == nil || latest.Status != models.TransactionStatusFailed {
		return nil, errors.NewInvalidStateError("payment can only be retried after a failed transaction")
	}

	txn := &models.Transaction{
		ID:                uuid.New(),
		PaymentID:         payment.ID,
		TransactionNumber: idgen.GenerateTransactionNumber(),
		AmountCents:       payment.TotalCents,
		Status:            models.TransactionStatusPending,
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.transactionRepo.Create(ctx, tx, txn); err != nil {
			return err
		}
		recordAudit(ctx, s.auditRepo, tx, "payment", payment.ID.String(), "retried",
			map[string]any{"failed_transaction_id": latest.ID},
			map[string]any{"new_transaction_id": txn.ID})
		return nil
	})
	if err != nil {
		return nil, err
	}

	payment.Transactions = append(payment.Transactions, txn)

	logger.WithContext(ctx).
		WithField("payment_id", payment.ID).
		WithField("transaction_id", txn.ID).
		Info("Payment retry opened")
	return payment, nil
}

func (s *paymentService) attachTransactions(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	txns, err := s.transactionRepo.ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	payment.Transactions = txns
	return payment, nil
}
