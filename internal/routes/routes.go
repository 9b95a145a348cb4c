// Package routes provides HTTP route configuration
package routes

import (
	"medifin-backend/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(h *handlers.Handlers) *gin.Engine {
	// Create Gin router
	router := gin.New()

	// Add middleware
	router.Use(h.RequestID())
	router.Use(h.Logger())
	router.Use(h.ErrorHandler())
	router.Use(h.CORS())

	// Health check
	router.GET("/health", h.Health)

	// Metrics endpoint
	router.GET("/metrics", h.MetricsHandler())

	// Coupon routes
	couponGroup := router.Group("/coupons")
	{
		couponGroup.POST("", h.CreateCoupon)
		couponGroup.POST("/validate", h.ValidateCoupon)
		couponGroup.POST("/redeem", h.RedeemCoupon)
		couponGroup.GET("/:code", h.GetCoupon)
		couponGroup.POST("/:code/deactivate", h.DeactivateCoupon)
	}

	// Insurance routes
	planGroup := router.Group("/insurance/plans")
	{
		planGroup.POST("", h.CreatePlan)
		planGroup.GET("/:id", h.GetPlan)
		planGroup.POST("/:id/cancel", h.CancelPlan)
		planGroup.POST("/:id/validate-coverage", h.ValidateCoverage)
		planGroup.POST("/:id/claims", h.SubmitClaim)
	}

	// Claim routes
	claimGroup := router.Group("/claims")
	{
		claimGroup.GET("/:id", h.GetClaim)
		claimGroup.POST("/:id/approve", h.ApproveClaim)
		claimGroup.POST("/:id/reject", h.RejectClaim)
	}

	// Payment routes
	paymentGroup := router.Group("/payments")
	{
		paymentGroup.POST("", h.CreatePayment)
		paymentGroup.GET("/:id", h.GetPayment)
		paymentGroup.POST("/:id/retry", h.RetryPayment)
	}

	// Transaction routes
	transactionGroup := router.Group("/transactions")
	{
		transactionGroup.GET("/:id", h.GetTransaction)
		transactionGroup.POST("/gateway-result", h.GatewayWebhook)
	}

	// Invoice routes
	invoiceGroup := router.Group("/invoices")
	{
		invoiceGroup.GET("/:id", h.GetInvoice)
		invoiceGroup.POST("/:id/finalize", h.FinalizeInvoice)
		invoiceGroup.POST("/:id/pay", h.MarkInvoicePaid)
		invoiceGroup.POST("/:id/adjustments", h.AddInvoiceAdjustment)
	}

	// Settlement routes
	router.POST("/settlements", h.Settle)

	return router
}
