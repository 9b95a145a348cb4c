package service

import (
	"context"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"
	"medifin-backend/pkg/idgen"

	"github.com/google/uuid"
)

// invoiceService implements InvoiceService
type invoiceService struct {
	transactionRepo repository.TransactionRepository
	invoiceRepo     repository.InvoiceRepository
	auditRepo       repository.AuditRepository
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(deps *Dependencies) InvoiceService {
	return &invoiceService{
		transactionRepo: deps.TransactionRepo,
		invoiceRepo:     deps.InvoiceRepo,
		auditRepo:       deps.AuditRepo,
	}
}

func (s *invoiceService) Create(ctx context.Context, bookingID string, totalCents int64) (*models.Invoice, error) {
	if totalCents < 0 {
		return nil, errors.NewValidationError("invoice total cannot be negative")
	}

	invoice := &models.Invoice{
		ID:            uuid.New(),
		BookingID:     bookingID,
		InvoiceNumber: idgen.GenerateInvoiceNumber(),
		TotalCents:    totalCents,
		Status:        models.InvoiceStatusDraft,
	}

	if err := s.invoiceRepo.Create(ctx, nil, invoice); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "invoice", invoice.ID.String(), "created", nil, invoice)

	logger.WithContext(ctx).
		WithField("invoice_id", invoice.ID).
		WithField("invoice_number", invoice.InvoiceNumber).
		Info("Invoice created")
	return invoice, nil
}

func (s *invoiceService) Get(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

// Finalize freezes the invoice amounts. Only a draft can be finalized; the
// move is a compare-and-set, so concurrent finalizations produce one winner
// and the rest see the invoice's actual state.
func (s *invoiceService) Finalize(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	if err := s.invoiceRepo.Finalize(ctx, invoiceID); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "invoice", invoiceID.String(), "finalized",
		map[string]any{"status": models.InvoiceStatusDraft},
		map[string]any{"status": models.InvoiceStatusFinalized})

	logger.WithContext(ctx).WithField("invoice_id", invoiceID).Info("Invoice finalized")
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

// MarkPaid settles a finalized invoice against a completed gateway
// transaction. The referenced transaction must exist and be COMPLETED;
// anything else leaves the invoice untouched.
func (s *invoiceService) MarkPaid(ctx context.Context, invoiceID uuid.UUID, req *models.MarkPaidRequest) (*models.Invoice, error) {
	txn, err := s.transactionRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}

	if txn.Status != models.TransactionStatusCompleted {
		return nil, errors.ErrUnsettledTransaction
	}

	if err := s.invoiceRepo.MarkPaid(ctx, invoiceID, txn.ID, req.PaymentMethod); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "invoice", invoiceID.String(), "paid",
		map[string]any{"status": models.InvoiceStatusFinalized},
		map[string]any{"status": models.InvoiceStatusPaid, "transaction_id": txn.ID})

	logger.WithContext(ctx).
		WithField("invoice_id", invoiceID).
		WithField("transaction_id", txn.ID).
		Info("Invoice marked paid")
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

// AddAdjustment appends a signed correction to a paid invoice. The invoice
// itself never changes; the effective total is the invoice total plus the
// sum of its adjustments.
func (s *invoiceService) AddAdjustment(ctx context.Context, invoiceID uuid.UUID, req *models.AddAdjustmentRequest) (*models.InvoiceAdjustment, error) {
	if req.AmountCents == 0 {
		return nil, errors.NewValidationError("adjustment amount cannot be zero")
	}
	if req.Reason == "" {
		return nil, errors.NewValidationError("adjustment reason is required")
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if invoice.Status != models.InvoiceStatusPaid {
		return nil, errors.NewInvalidStateError("adjustments only apply to paid invoices")
	}

	adjustment := &models.InvoiceAdjustment{
		ID:          uuid.New(),
		InvoiceID:   invoiceID,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
	}

	if err := s.invoiceRepo.AddAdjustment(ctx, adjustment); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditRepo, nil, "invoice", invoiceID.String(), "adjusted", nil, adjustment)

	logger.WithContext(ctx).
		WithField("invoice_id", invoiceID).
		WithField("amount_cents", adjustment.AmountCents).
		Info("Invoice adjustment recorded")
	return adjustment, nil
}
