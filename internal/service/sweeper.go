package service

import (
	"context"
	"time"

	"medifin-backend/internal/config"
	"medifin-backend/internal/logger"
	"medifin-backend/internal/metrics"
	"medifin-backend/internal/repository"

	"golang.org/x/sync/errgroup"
)

// Sweeper periodically moves time-expired rows to their terminal states:
// insurance plans past their validity window become expired, coupons past
// theirs become inactive. Both sweeps are conditional updates that only move
// rows toward terminal states, so running them concurrently with traffic or
// with another sweeper instance is safe.
type Sweeper struct {
	couponRepo    repository.CouponRepository
	insuranceRepo repository.InsuranceRepository
	cfg           *config.SweepsConfig

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper creates a new sweeper
func NewSweeper(deps *Dependencies) *Sweeper {
	return &Sweeper{
		couponRepo:    deps.CouponRepo,
		insuranceRepo: deps.InsuranceRepo,
		cfg:           &deps.Config.Sweeps,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	logger.WithComponent("sweeper").
		WithField("interval", s.cfg.Interval).
		Info("Sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight sweep to finish
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	logger.WithComponent("sweeper").Info("Sweeper stopped")
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		metrics.SweepRuns.WithLabelValues("expire_plans").Inc()
		n, err := s.insuranceRepo.ExpirePlans(gctx, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.SweptEntities.WithLabelValues("expire_plans").Add(float64(n))
			logger.WithComponent("sweeper").WithField("count", n).Info("Expired insurance plans")
		}
		return nil
	})

	g.Go(func() error {
		metrics.SweepRuns.WithLabelValues("deactivate_coupons").Inc()
		n, err := s.couponRepo.DeactivateExpired(gctx, now, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if n > 0 {
			metrics.SweptEntities.WithLabelValues("deactivate_coupons").Add(float64(n))
			logger.WithComponent("sweeper").WithField("count", n).Info("Deactivated expired coupons")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.WithComponent("sweeper").WithError(err).Error("Sweep run failed")
	}
}
