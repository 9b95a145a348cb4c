// Package handlers provides HTTP request handlers
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"medifin-backend/internal/errors"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/models"
	"medifin-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	services *service.Services
}

// New creates a new handlers instance
func New(services *service.Services) *Handlers {
	return &Handlers{
		services: services,
	}
}

// Coupon handlers

// CreateCoupon handles POST /coupons
func (h *Handlers) CreateCoupon(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	coupon, err := h.services.Coupon.Create(ctx, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, coupon)
}

// GetCoupon handles GET /coupons/:code
func (h *Handlers) GetCoupon(c *gin.Context) {
	ctx := c.Request.Context()

	coupon, err := h.services.Coupon.Get(ctx, c.Param("code"))
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}

// ValidateCoupon handles POST /coupons/validate
func (h *Handlers) ValidateCoupon(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	quote, err := h.services.Coupon.Validate(ctx, req.Code, req.OrderCents)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// RedeemCoupon handles POST /coupons/redeem
func (h *Handlers) RedeemCoupon(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	result, err := h.services.Coupon.Redeem(ctx, req.Code, req.OrderCents)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeactivateCoupon handles POST /coupons/:code/deactivate
func (h *Handlers) DeactivateCoupon(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.services.Coupon.Deactivate(ctx, c.Param("code")); err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon deactivated",
	})
}

// Insurance handlers

// CreatePlan handles POST /insurance/plans
func (h *Handlers) CreatePlan(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	plan, err := h.services.Insurance.CreatePlan(ctx, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// GetPlan handles GET /insurance/plans/:id
func (h *Handlers) GetPlan(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid plan ID")
	if !ok {
		return
	}

	plan, err := h.services.Insurance.GetPlan(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// CancelPlan handles POST /insurance/plans/:id/cancel
func (h *Handlers) CancelPlan(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid plan ID")
	if !ok {
		return
	}

	if err := h.services.Insurance.CancelPlan(ctx, id); err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Plan cancelled",
	})
}

// ValidateCoverage handles POST /insurance/plans/:id/validate-coverage
func (h *Handlers) ValidateCoverage(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid plan ID")
	if !ok {
		return
	}

	var req models.ValidateCoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	result, err := h.services.Insurance.ValidateCoverage(ctx, id, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SubmitClaim handles POST /insurance/plans/:id/claims
func (h *Handlers) SubmitClaim(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid plan ID")
	if !ok {
		return
	}

	var req models.SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	claim, err := h.services.Insurance.SubmitClaim(ctx, id, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, claim)
}

// GetClaim handles GET /claims/:id
func (h *Handlers) GetClaim(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid claim ID")
	if !ok {
		return
	}

	claim, err := h.services.Insurance.GetClaim(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// ApproveClaim handles POST /claims/:id/approve
func (h *Handlers) ApproveClaim(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid claim ID")
	if !ok {
		return
	}

	var req models.ApproveClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	result, err := h.services.Insurance.ApproveClaim(ctx, id, req.ApprovedCents)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RejectClaim handles POST /claims/:id/reject
func (h *Handlers) RejectClaim(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid claim ID")
	if !ok {
		return
	}

	var req models.RejectClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	claim, err := h.services.Insurance.RejectClaim(ctx, id, req.Reason)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, claim)
}

// Payment handlers

// CreatePayment handles POST /payments
func (h *Handlers) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	payment, err := h.services.Payment.Create(ctx, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// GetPayment handles GET /payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid payment ID")
	if !ok {
		return
	}

	payment, err := h.services.Payment.Get(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment": payment,
		"status":  payment.Status(),
	})
}

// RetryPayment handles POST /payments/:id/retry
func (h *Handlers) RetryPayment(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid payment ID")
	if !ok {
		return
	}

	payment, err := h.services.Payment.Retry(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment": payment,
		"status":  payment.Status(),
	})
}

// Transaction handlers

// GetTransaction handles GET /transactions/:id
func (h *Handlers) GetTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid transaction ID")
	if !ok {
		return
	}

	txn, err := h.services.Transaction.Get(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// GatewayWebhook handles POST /transactions/gateway-result
func (h *Handlers) GatewayWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.GatewayResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	txn, err := h.services.Settlement.ApplyGatewayResult(ctx, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// Invoice handlers

// GetInvoice handles GET /invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid invoice ID")
	if !ok {
		return
	}

	invoice, err := h.services.Invoice.Get(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// FinalizeInvoice handles POST /invoices/:id/finalize
func (h *Handlers) FinalizeInvoice(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid invoice ID")
	if !ok {
		return
	}

	invoice, err := h.services.Invoice.Finalize(ctx, id)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// MarkInvoicePaid handles POST /invoices/:id/pay
func (h *Handlers) MarkInvoicePaid(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid invoice ID")
	if !ok {
		return
	}

	var req models.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	invoice, err := h.services.Invoice.MarkPaid(ctx, id, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// AddInvoiceAdjustment handles POST /invoices/:id/adjustments
func (h *Handlers) AddInvoiceAdjustment(c *gin.Context) {
	ctx := c.Request.Context()

	id, ok := h.parseID(c, "id", "Invalid invoice ID")
	if !ok {
		return
	}

	var req models.AddAdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	adjustment, err := h.services.Invoice.AddAdjustment(ctx, id, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, adjustment)
}

// Settlement handlers

// Settle handles POST /settlements
func (h *Handlers) Settle(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	var req models.SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Invalid request body")
		h.respondWithError(c, errors.NewValidationError("Invalid request body: "+err.Error()))
		return
	}

	result, err := h.services.Settlement.SettleBookingCharge(ctx, &req)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	metrics.HTTPRequestDuration.WithLabelValues("POST", "/settlements").Observe(time.Since(start).Seconds())

	if result.AlreadySettled {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Health handlers

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	ctx := c.Request.Context()

	health, err := h.services.Health.Check(ctx)
	if err != nil {
		h.respondWithError(c, err)
		return
	}

	statusCode := http.StatusOK
	if health.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// Middleware

// RequestID middleware adds a request ID to the context
func (h *Handlers) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		// Add to context
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		// Add to response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// Logger middleware logs HTTP requests
func (h *Handlers) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Log request
		latency := time.Since(start)

		if raw != "" {
			path = path + "?" + raw
		}

		logger.WithRequest(
			c.GetString("request_id"),
			c.Request.Method,
			path,
		).WithFields(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": latency.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request processed")

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// ErrorHandler middleware handles panics and converts them to errors
func (h *Handlers) ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithContext(c.Request.Context()).
					WithField("error", err).
					Error("Panic recovered")

				h.respondWithError(c, errors.ErrInternalError)
				c.Abort()
			}
		}()

		c.Next()
	}
}

// CORS middleware handles Cross-Origin Resource Sharing
func (h *Handlers) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// MetricsHandler returns Prometheus metrics
func (h *Handlers) MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Helper methods

func (h *Handlers) parseID(c *gin.Context, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		logger.WithContext(c.Request.Context()).WithError(err).Error(message)
		h.respondWithError(c, errors.NewValidationError(message))
		return uuid.Nil, false
	}
	return id, true
}

// respondWithError responds with an error in a consistent format
func (h *Handlers) respondWithError(c *gin.Context, err error) {
	statusCode := errors.GetStatusCode(err)
	response := errors.ToErrorResponse(err)

	c.JSON(statusCode, response)
}
