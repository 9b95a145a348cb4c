package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/errors"
	"medifin-backend/internal/models"

	"github.com/google/uuid"
)

// The fakes below implement the repository contracts in memory, including
// the conditional-update semantics the services rely on: usage increments
// that respect the cap, balance deductions guarded by version and balance,
// and per-row status compare-and-swap.

// fakeDB satisfies Database. Fakes guard their own state, so the closure
// runs without a real transaction.
type fakeDB struct{}

func (f *fakeDB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return fn(nil)
}

func (f *fakeDB) Health(ctx context.Context) error {
	return nil
}

type fakeCouponRepo struct {
	mu      sync.Mutex
	coupons map[uuid.UUID]*models.Coupon
}

func newFakeCouponRepo() *fakeCouponRepo {
	return &fakeCouponRepo{coupons: make(map[uuid.UUID]*models.Coupon)}
}

func (f *fakeCouponRepo) Create(ctx context.Context, coupon *models.Coupon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	coupon.Code = strings.ToUpper(coupon.Code)
	cp := *coupon
	f.coupons[coupon.ID] = &cp
	return nil
}

func (f *fakeCouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.coupons {
		if c.Code == strings.ToUpper(code) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, errors.ErrCouponNotFound
}

func (f *fakeCouponRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok {
		return nil, errors.ErrCouponNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok || !c.IsActive || c.UsageCount >= c.MaxUsageCount {
		return 0, errors.ErrUsageExceeded
	}
	c.UsageCount++
	return c.UsageCount, nil
}

func (f *fakeCouponRepo) ReleaseUsage(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok || c.UsageCount == 0 {
		return errors.ErrCouponNotFound
	}
	c.UsageCount--
	return nil
}

func (f *fakeCouponRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[id]
	if !ok {
		return errors.ErrCouponNotFound
	}
	c.IsActive = false
	return nil
}

func (f *fakeCouponRepo) DeactivateExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.coupons {
		if n >= int64(limit) {
			break
		}
		if c.IsActive && c.ValidUpto.Before(now) {
			c.IsActive = false
			n++
		}
	}
	return n, nil
}

type fakeInsuranceRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*models.InsurancePlan
}

func newFakeInsuranceRepo() *fakeInsuranceRepo {
	return &fakeInsuranceRepo{plans: make(map[uuid.UUID]*models.InsurancePlan)}
}

func (f *fakeInsuranceRepo) CreatePlan(ctx context.Context, plan *models.InsurancePlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan.BalanceCents = plan.TotalCents
	plan.Version = 1
	cp := *plan
	f.plans[plan.ID] = &cp
	return nil
}

func (f *fakeInsuranceRepo) GetPlan(ctx context.Context, id uuid.UUID) (*models.InsurancePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, errors.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeInsuranceRepo) GetPlanForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.InsurancePlan, error) {
	return f.GetPlan(ctx, id)
}

func (f *fakeInsuranceRepo) ApproveDeduct(ctx context.Context, tx *sql.Tx, id uuid.UUID, amountCents int64, version int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return 0, errors.ErrPlanNotFound
	}
	if p.Version == version && p.BalanceCents >= amountCents {
		p.BalanceCents -= amountCents
		p.ApprovedClaims++
		p.TotalClaimsCents += amountCents
		p.Version++
		return p.BalanceCents, nil
	}
	if p.BalanceCents < amountCents {
		return 0, errors.ErrInsufficientBalance
	}
	return 0, errors.NewConcurrencyError("insurance plan was modified by another transaction")
}

func (f *fakeInsuranceRepo) IncrementSubmitted(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return errors.ErrPlanNotFound
	}
	p.TotalClaims++
	return nil
}

func (f *fakeInsuranceRepo) IncrementRejected(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return errors.ErrPlanNotFound
	}
	p.RejectedClaims++
	return nil
}

func (f *fakeInsuranceRepo) CancelPlan(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return errors.ErrPlanNotFound
	}
	if p.Status != models.PlanStatusActive {
		return errors.NewInvalidStateError("plan is " + string(p.Status) + " and cannot be cancelled")
	}
	p.Status = models.PlanStatusCancelled
	p.Version++
	return nil
}

func (f *fakeInsuranceRepo) ExpirePlans(ctx context.Context, now time.Time, limit int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, p := range f.plans {
		if n >= int64(limit) {
			break
		}
		if p.Status == models.PlanStatusActive && p.ValidUpto.Before(now) {
			p.Status = models.PlanStatusExpired
			p.Version++
			n++
		}
	}
	return n, nil
}

type fakeClaimRepo struct {
	mu     sync.Mutex
	claims map[uuid.UUID]*models.Claim
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{claims: make(map[uuid.UUID]*models.Claim)}
}

func (f *fakeClaimRepo) Create(ctx context.Context, claim *models.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *claim
	f.claims[claim.ID] = &cp
	return nil
}

func (f *fakeClaimRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok {
		return nil, errors.ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClaimRepo) GetByIDForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Claim, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeClaimRepo) Approve(ctx context.Context, tx *sql.Tx, id uuid.UUID, approvedCents int64, decidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok {
		return errors.ErrClaimNotFound
	}
	if c.Status != models.ClaimStatusSubmitted {
		return errors.ErrClaimAlreadyDecided
	}
	c.Status = models.ClaimStatusApproved
	c.ApprovedCents = &approvedCents
	c.DecidedAt = &decidedAt
	return nil
}

func (f *fakeClaimRepo) Reject(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, decidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok {
		return errors.ErrClaimNotFound
	}
	if c.Status != models.ClaimStatusSubmitted {
		return errors.ErrClaimAlreadyDecided
	}
	c.Status = models.ClaimStatusRejected
	c.RejectionReason = &reason
	c.DecidedAt = &decidedAt
	return nil
}

func (f *fakeClaimRepo) ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*models.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var claims []*models.Claim
	for _, c := range f.claims {
		if c.InsuranceID == planID {
			cp := *c
			claims = append(claims, &cp)
		}
	}
	return claims, nil
}

type fakeTransactionRepo struct {
	mu   sync.Mutex
	txns map[uuid.UUID]*models.Transaction
	seq  int
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{txns: make(map[uuid.UUID]*models.Transaction)}
}

func (f *fakeTransactionRepo) Create(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.txns {
		if existing.PaymentID == txn.PaymentID &&
			(existing.Status == models.TransactionStatusPending || existing.Status == models.TransactionStatusProcessing) {
			return errors.NewConcurrencyError("payment already has an active transaction")
		}
	}
	f.seq++
	txn.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Microsecond)
	cp := *txn
	f.txns[txn.ID] = &cp
	return nil
}

func (f *fakeTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	return copyTxn(t), nil
}

func (f *fakeTransactionRepo) GetByGatewayID(ctx context.Context, gatewayID string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.txns {
		if t.GatewayTransactionID != nil && *t.GatewayTransactionID == gatewayID {
			return copyTxn(t), nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}

func (f *fakeTransactionRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []*models.Transaction
	for _, t := range f.txns {
		if t.PaymentID == paymentID {
			txns = append(txns, copyTxn(t))
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}

func (f *fakeTransactionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus, eventJSON []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	if t.Status != from {
		if t.Status == to {
			return errors.NewConcurrencyError("transaction was updated by another caller")
		}
		return errors.ErrInvalidTransition
	}
	t.Status = to
	now := time.Now()
	switch to {
	case models.TransactionStatusProcessing:
		t.ProcessedAt = &now
	case models.TransactionStatusCompleted:
		t.CompletedAt = &now
	}
	mergeEvent(t, eventJSON)
	return nil
}

func (f *fakeTransactionRepo) SetGatewayID(ctx context.Context, id uuid.UUID, gatewayID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.txns[id]
	if !ok {
		return errors.ErrTransactionNotFound
	}
	if t.GatewayTransactionID != nil && *t.GatewayTransactionID != gatewayID {
		return errors.NewInvalidStateError("transaction is bound to a different gateway transaction")
	}
	t.GatewayTransactionID = &gatewayID
	return nil
}

func copyTxn(t *models.Transaction) *models.Transaction {
	cp := *t
	if t.GatewayResponse != nil {
		cp.GatewayResponse = make(map[string]any, len(t.GatewayResponse))
		for k, v := range t.GatewayResponse {
			cp.GatewayResponse[k] = v
		}
	}
	return &cp
}

// mergeEvent mirrors the additive JSONB merge: existing keys survive unless
// the event carries a replacement.
func mergeEvent(t *models.Transaction, eventJSON []byte) {
	if len(eventJSON) == 0 {
		return
	}
	var fields map[string]any
	if err := json.Unmarshal(eventJSON, &fields); err != nil {
		return
	}
	if t.GatewayResponse == nil {
		t.GatewayResponse = make(map[string]any)
	}
	for k, v := range fields {
		t.GatewayResponse[k] = v
	}
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[uuid.UUID]*models.Payment)}
}

func (f *fakePaymentRepo) Create(ctx context.Context, tx *sql.Tx, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *payment
	cp.Transactions = nil
	f.payments[payment.ID] = &cp
	return nil
}

func (f *fakePaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, errors.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) GetByRequestID(ctx context.Context, requestID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.RequestID == requestID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentRepo) GetByBookingID(ctx context.Context, bookingID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.BookingID == bookingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.ErrPaymentNotFound
}

type fakeInvoiceRepo struct {
	mu          sync.Mutex
	invoices    map[uuid.UUID]*models.Invoice
	adjustments []*models.InvoiceAdjustment
	seq         int
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[uuid.UUID]*models.Invoice)}
}

func (f *fakeInvoiceRepo) Create(ctx context.Context, tx *sql.Tx, invoice *models.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	invoice.CreatedAt = time.Now().Add(time.Duration(f.seq) * time.Microsecond)
	cp := *invoice
	f.invoices[invoice.ID] = &cp
	return nil
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, errors.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInvoiceRepo) GetLatestByBookingID(ctx context.Context, bookingID string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Invoice
	for _, inv := range f.invoices {
		if inv.BookingID != bookingID {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	if latest == nil {
		return nil, errors.ErrInvoiceNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeInvoiceRepo) Finalize(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return errors.ErrInvoiceNotFound
	}
	if inv.Status != models.InvoiceStatusDraft {
		return f.lifecycleError(inv)
	}
	now := time.Now()
	inv.Status = models.InvoiceStatusFinalized
	inv.FinalizedAt = &now
	return nil
}

func (f *fakeInvoiceRepo) MarkPaid(ctx context.Context, id uuid.UUID, transactionID uuid.UUID, paymentMethod string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return errors.ErrInvoiceNotFound
	}
	if inv.Status != models.InvoiceStatusFinalized {
		return f.lifecycleError(inv)
	}
	now := time.Now()
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &now
	inv.TransactionID = &transactionID
	inv.PaymentMethod = &paymentMethod
	return nil
}

func (f *fakeInvoiceRepo) lifecycleError(inv *models.Invoice) error {
	if inv.Status == models.InvoiceStatusPaid {
		return errors.ErrInvoiceImmutable
	}
	return errors.NewInvalidStateError("invoice is " + string(inv.Status))
}

func (f *fakeInvoiceRepo) AddAdjustment(ctx context.Context, adjustment *models.InvoiceAdjustment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *adjustment
	f.adjustments = append(f.adjustments, &cp)
	return nil
}

func (f *fakeInvoiceRepo) ListAdjustments(ctx context.Context, invoiceID uuid.UUID) ([]*models.InvoiceAdjustment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.InvoiceAdjustment
	for _, a := range f.adjustments {
		if a.InvoiceID == invoiceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*models.OutboxEvent
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{}
}

func (f *fakeOutboxRepo) Create(ctx context.Context, tx *sql.Tx, event *models.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = int64(len(f.events) + 1)
	event.Status = models.OutboxStatusPending
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeOutboxRepo) GetPending(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.OutboxEvent
	for _, e := range f.events {
		if len(out) >= limit {
			break
		}
		if e.Status == models.OutboxStatusPending {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOutboxRepo) MarkSent(ctx context.Context, id int64) error {
	return f.setStatus(id, models.OutboxStatusSent)
}

func (f *fakeOutboxRepo) IncrementRetry(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			e.RetryCount++
			return nil
		}
	}
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id int64) error {
	return f.setStatus(id, models.OutboxStatusFailed)
}

func (f *fakeOutboxRepo) setStatus(id int64, status models.OutboxStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			e.Status = status
			return nil
		}
	}
	return nil
}

func (f *fakeOutboxRepo) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var topics []string
	for _, e := range f.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (f *fakeAuditRepo) Record(ctx context.Context, tx *sql.Tx, event *models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *event
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeAuditRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// testEnv bundles the fakes and the services wired on top of them
type testEnv struct {
	coupons      *fakeCouponRepo
	plans        *fakeInsuranceRepo
	claims       *fakeClaimRepo
	transactions *fakeTransactionRepo
	payments     *fakePaymentRepo
	invoices     *fakeInvoiceRepo
	outbox       *fakeOutboxRepo
	audit        *fakeAuditRepo
	services     *Services
}

func newTestEnv() *testEnv {
	env := &testEnv{
		coupons:      newFakeCouponRepo(),
		plans:        newFakeInsuranceRepo(),
		claims:       newFakeClaimRepo(),
		transactions: newFakeTransactionRepo(),
		payments:     newFakePaymentRepo(),
		invoices:     newFakeInvoiceRepo(),
		outbox:       newFakeOutboxRepo(),
		audit:        newFakeAuditRepo(),
	}

	cfg := &config.Config{
		Settlement: config.SettlementConfig{
			ConflictRetries: 3,
			RetryDelay:      time.Millisecond,
			LockTTL:         time.Second,
			LockRetryDelay:  time.Millisecond,
			LockRetries:     3,
		},
		Sweeps: config.SweepsConfig{
			Interval:  10 * time.Millisecond,
			BatchSize: 100,
		},
		Kafka: config.KafkaConfig{
			NotificationTopic: "medifin.notifications",
		},
	}

	deps := &Dependencies{
		DB:              &fakeDB{},
		CouponRepo:      env.coupons,
		InsuranceRepo:   env.plans,
		ClaimRepo:       env.claims,
		TransactionRepo: env.transactions,
		PaymentRepo:     env.payments,
		InvoiceRepo:     env.invoices,
		OutboxRepo:      env.outbox,
		AuditRepo:       env.audit,
		Config:          cfg,
	}

	env.services = NewServices(deps)
	return env
}

func newID() uuid.UUID {
	return uuid.New()
}
