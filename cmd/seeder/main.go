// Package main provides a data seeder for demo coupons and insurance plans
package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/database"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/models"
	"medifin-backend/internal/repository"

	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	logger.Init("info", "text")

	logger.Info("Starting data seeder")

	// Connect to database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize repositories
	couponRepo := repository.NewCouponRepository(db.DB)
	insuranceRepo := repository.NewInsuranceRepository(db.DB)

	if err := seedCoupons(couponRepo); err != nil {
		logger.Fatalf("Failed to seed coupons: %v", err)
	}

	if err := seedPlans(insuranceRepo); err != nil {
		logger.Fatalf("Failed to seed insurance plans: %v", err)
	}

	logger.Info("Data seeding completed successfully")
}

func seedCoupons(couponRepo repository.CouponRepository) error {
	logger.Info("Seeding coupons...")

	now := time.Now()

	coupons := []*models.Coupon{
		{
			ID:            uuid.New(),
			Code:          "WELCOME10",
			DiscountType:  models.DiscountTypePercentage,
			DiscountValue: 10,
			MinOrderCents: 10000,
			MaxUsageCount: 1000,
			ValidFrom:     now.AddDate(0, 0, -1),
			ValidUpto:     now.AddDate(0, 6, 0),
			IsActive:      true,
		},
		{
			ID:            uuid.New(),
			Code:          "DENTAL50",
			DiscountType:  models.DiscountTypeFixed,
			DiscountValue: 5000,
			MinOrderCents: 20000,
			MaxUsageCount: 200,
			ValidFrom:     now.AddDate(0, 0, -1),
			ValidUpto:     now.AddDate(0, 3, 0),
			IsActive:      true,
		},
		{
			ID:            uuid.New(),
			Code:          "LASTCHANCE",
			DiscountType:  models.DiscountTypePercentage,
			DiscountValue: 25,
			MinOrderCents: 50000,
			MaxUsageCount: 5,
			ValidFrom:     now.AddDate(0, 0, -30),
			ValidUpto:     now.AddDate(0, 0, 7),
			IsActive:      true,
		},
	}

	for _, coupon := range coupons {
		if err := couponRepo.Create(context.Background(), coupon); err != nil {
			return fmt.Errorf("failed to create coupon %s: %w", coupon.Code, err)
		}
	}

	logger.Infof("Successfully seeded %d coupons", len(coupons))
	return nil
}

func seedPlans(insuranceRepo repository.InsuranceRepository) error {
	logger.Info("Seeding insurance plans...")

	now := time.Now()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	treatments := [][]string{
		nil, // covers everything
		{"dental", "orthodontic"},
		{"cardiology", "oncology", "orthopedic"},
	}

	const totalPlans = 25

	for i := 0; i < totalPlans; i++ {
		// Total between $5,000 and $55,000
		totalCents := int64(rng.Intn(5000000) + 500000)

		plan := &models.InsurancePlan{
			ID:                uuid.New(),
			OwnerID:           fmt.Sprintf("patient_%03d", i+1),
			TotalCents:        totalCents,
			BalanceCents:      totalCents,
			CoveragePercent:   []int{50, 70, 80, 90}[rng.Intn(4)],
			MaxClaimCents:     int64(rng.Intn(1000000) + 100000),
			CoveredTreatments: treatments[rng.Intn(len(treatments))],
			ValidFrom:         now.AddDate(0, 0, -rng.Intn(180)),
			ValidUpto:         now.AddDate(1, 0, 0),
			Status:            models.PlanStatusActive,
			Version:           1,
		}

		if err := insuranceRepo.CreatePlan(context.Background(), plan); err != nil {
			return fmt.Errorf("failed to create plan for %s: %w", plan.OwnerID, err)
		}
	}

	logger.Infof("Successfully seeded %d insurance plans", totalPlans)
	return nil
}
