// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/loanbridge/loanbridge-backend/internal/config"
	"github.com/loanbridge/loanbridge-backend/internal/services"
)

// Scheduler drives the periodic offer sweeps: the hourly expiry warning and
// the daily expiration run. Sweeps are idempotent, so an overlapping or
// repeated run is harmless.
type Scheduler struct {
	cron       *cron.Cron
	config     *config.Config
	expiration *services.OfferExpirationService
}

func New(cfg *config.Config, expiration *services.OfferExpirationService) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		config:     cfg,
		expiration: expiration,
	}
}

// Start registers the sweep jobs and begins the cron loop. Returns an error
// if either cron spec fails to parse.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.Scheduler.WarningSpec, s.runWarningSweep); err != nil {
		return fmt.Errorf("failed to schedule warning sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.config.Scheduler.ExpirationSpec, s.runExpirySweep); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"warning_spec":    s.config.Scheduler.WarningSpec,
		"expiration_spec": s.config.Scheduler.ExpirationSpec,
	}).Info("Scheduler started")
	return nil
}

// Stop halts new job runs and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logrus.Info("Scheduler stopped")
}

func (s *Scheduler) runWarningSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.expiration.CheckExpiringOffers(ctx); err != nil {
		logrus.WithError(err).Error("Offer expiration warning sweep failed")
	}
}

func (s *Scheduler) runExpirySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := s.expiration.ExpireOffers(ctx); err != nil {
		logrus.WithError(err).Error("Offer expiration sweep failed")
	}
}
