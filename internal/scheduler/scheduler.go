package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"chipereganyu-settlement/internal/jobs"
	"chipereganyu-settlement/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner. It fails
// when any cron spec does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	entries := []struct {
		name string
		spec string
		job  func()
	}{
		{"ReconcileProcessingSettlements", cfg.ReconcileSettlements, s.jobs.ReconcileProcessingSettlements},
		{"RecoverStalePending", cfg.RecoverStalePending, s.jobs.RecoverStalePending},
		{"ExpireProcessingSettlements", cfg.ExpireProcessing, s.jobs.ExpireProcessingSettlements},
		{"DeliverNotifications", cfg.DeliverNotifications, s.jobs.DeliverNotifications},
		{"AuditReserveLedger", cfg.AuditReserve, s.jobs.AuditReserveLedger},
	}

	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.job); err != nil {
			logger.Error("Failed to register job", "job", e.name, "spec", e.spec, "error", err)
			return fmt.Errorf("register %s: %w", e.name, err)
		}
		logger.Debug("Registered job", "job", e.name, "spec", e.spec)
	}

	logger.Info("All cron jobs registered successfully", "count", len(entries))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
