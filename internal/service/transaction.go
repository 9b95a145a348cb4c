package service

import (
	"context"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/google/uuid"
)

// transactionService implements TransactionService
type transactionService struct {
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditRepository
}

// NewTransactionService creates a new transaction service
func NewTransactionService(deps *Dependencies) TransactionService {
	return &transactionService{
		transactionRepo: deps.TransactionRepo,
		auditRepo:       deps.AuditRepo,
	}
}

func (s *transactionService) Get(ctx context.Context, txnID uuid.UUID) (*models.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, txnID)
}

func (s *transactionService) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error) {
	return s.transactionRepo.GetByGatewayID(ctx, gatewayID)
}

// Transition moves a transaction to the target status. The move is applied
// as a single compare-and-set against the status the caller observed, so two
// racing transitions resolve to one winner. An event, when given, is merged
// additively into the stored gateway response.
func (s *transactionService) Transition(ctx context.Context, txnID uuid.UUID, target models.TransactionStatus, event *models.GatewayEvent) (*models.Transaction, error) {
	txn, err := s.transactionRepo.GetByID(ctx, txnID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransitionTo(txn.Status, target) {
		metrics.TransitionRejections.Inc()
		return nil, transitionError(txn.Status, target)
	}

	var eventJSON []byte
	if event != nil {
		eventJSON = event.JSON()
	}

	if err := s.transactionRepo.UpdateStatus(ctx, txnID, txn.Status, target, eventJSON); err != nil {
		return nil, err
	}

	metrics.TransactionTransitions.WithLabelValues(string(txn.Status), string(target)).Inc()
	recordAudit(ctx, s.auditRepo, nil, "transaction", txnID.String(), "transitioned",
		map[string]any{"status": txn.Status},
		map[string]any{"status": target})

	logger.WithContext(ctx).
		WithField("transaction_id", txnID).
		WithField("from", txn.Status).
		WithField("to", target).
		Info("Transaction transitioned")

	return s.transactionRepo.GetByID(ctx, txnID)
}

// Cancel abandons a transaction that never reached the gateway. Only pending
// transactions can be cancelled.
func (s *transactionService) Cancel(ctx context.Context, txnID uuid.UUID) (*models.Transaction, error) {
	return s.Transition(ctx, txnID, models.TransactionStatusCancelled, nil)
}

func transitionError(from, to models.TransactionStatus) error {
	return &errors.AppError{
		Code:       errors.ErrCodeInvalidTransition,
		Message:    "transaction cannot move from " + string(from) + " to " + string(to),
		StatusCode: errors.ErrInvalidTransition.StatusCode,
	}
}
