package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"chipereganyu-settlement/internal/config"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
	"chipereganyu-settlement/internal/service"
)

// jobTimeout bounds one run of any job.
const jobTimeout = 10 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	settlementRepo repository.SettlementRepository
	gateway        service.Gateway
	services       *Services
	config         *config.Config
	now            func() time.Time
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Settlements   service.SettlementService
	Reserve       service.ReserveService
	Notifications service.NotificationService
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(settlementRepo repository.SettlementRepository, gateway service.Gateway, services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		settlementRepo: settlementRepo,
		gateway:        gateway,
		services:       services,
		config:         cfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the configuration the jobs were built with.
func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("Starting job", "job", jobName)
	jobFunc(ctx)
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

// Jobs returns every job by name.
func (jr *JobRunner) Jobs() map[string]func() {
	return map[string]func(){
		"reconcile-settlements": jr.ReconcileProcessingSettlements,
		"recover-stale-pending": jr.RecoverStalePending,
		"expire-processing":     jr.ExpireProcessingSettlements,
		"deliver-notifications": jr.DeliverNotifications,
		"audit-reserve":         jr.AuditReserveLedger,
	}
}

// RunOnce runs a single job by name (for manual execution)
func (jr *JobRunner) RunOnce(name string) error {
	job, ok := jr.Jobs()[name]
	if !ok {
		names := make([]string, 0, len(jr.Jobs()))
		for n := range jr.Jobs() {
			names = append(names, n)
		}
		sort.Strings(names)
		return fmt.Errorf("unknown job %q, expected one of %v", name, names)
	}
	job()
	return nil
}

// RunAll runs every job once, recovery first so polled settlements include
// the recovered ones.
func (jr *JobRunner) RunAll() {
	jr.RecoverStalePending()
	jr.ReconcileProcessingSettlements()
	jr.ExpireProcessingSettlements()
	jr.DeliverNotifications()
	jr.AuditReserveLedger()
}
