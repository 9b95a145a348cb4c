// Package main is the entry point for the application
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/database"
	"medifin-backend/internal/dispatch"
	"medifin-backend/internal/handlers"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/repository"
	"medifin-backend/internal/routes"
	"medifin-backend/internal/service"
	"medifin-backend/pkg/idgen"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	logger.Info("Starting Medifin Backend Service")

	// Connect to database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis (settlement locks)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Initialize metrics and ID generation
	metrics.Init()
	idgen.Init(1)

	// Initialize repositories
	couponRepo := repository.NewCouponRepository(db.DB)
	insuranceRepo := repository.NewInsuranceRepository(db.DB)
	claimRepo := repository.NewClaimRepository(db.DB)
	transactionRepo := repository.NewTransactionRepository(db.DB)
	paymentRepo := repository.NewPaymentRepository(db.DB)
	invoiceRepo := repository.NewInvoiceRepository(db.DB)
	outboxRepo := repository.NewOutboxRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)

	// Initialize the Kafka producer and outbox dispatcher
	producer, err := dispatch.NewProducer(&cfg.Kafka)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	dispatcher := dispatch.NewOutboxDispatcher(outboxRepo, producer, &cfg.Kafka)
	go dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	// Initialize services
	deps := &service.Dependencies{
		DB:              db,
		CouponRepo:      couponRepo,
		InsuranceRepo:   insuranceRepo,
		ClaimRepo:       claimRepo,
		TransactionRepo: transactionRepo,
		PaymentRepo:     paymentRepo,
		InvoiceRepo:     invoiceRepo,
		OutboxRepo:      outboxRepo,
		AuditRepo:       auditRepo,
		RedisClient:     redisClient,
		Config:          cfg,
	}
	services := service.NewServices(deps)

	// Initialize the expiry sweeper
	sweeper := service.NewSweeper(deps)
	go sweeper.Start(context.Background())
	defer sweeper.Stop()

	// Initialize handlers
	h := handlers.New(services)

	// Set Gin mode
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup routes
	router := routes.SetupRoutes(h)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	} else {
		logger.Info("Server shutdown complete")
	}
}
