package jobs

import (
	"context"

	"chipereganyu-settlement/internal/logger"
)

// DeliverNotifications drains the outbox in batches until a batch comes
// back short.
func (jr *JobRunner) DeliverNotifications() {
	jr.runWithRecovery("DeliverNotifications", func(ctx context.Context) {
		batch := jr.config.Notifications.BatchSize
		total := 0
		for {
			delivered, err := jr.services.Notifications.DeliverPending(ctx)
			total += delivered
			if err != nil {
				logger.Error("Failed to deliver notifications", "error", err)
				break
			}
			if delivered == 0 || delivered < batch || ctx.Err() != nil {
				break
			}
		}
		if total > 0 {
			logger.Info("Delivered notifications", "count", total)
		}
	})
}

// AuditReserveLedger compares the cached reserve balance with the ledger.
func (jr *JobRunner) AuditReserveLedger() {
	jr.runWithRecovery("AuditReserveLedger", func(ctx context.Context) {
		audit, err := jr.services.Reserve.Audit(ctx)
		if err != nil {
			logger.Error("Failed to audit reserve", "error", err)
			return
		}
		logger.Info("Reserve audited",
			"ledgerBalance", audit.LedgerBalance,
			"cachedBalance", audit.CachedBalance,
			"consistent", audit.Consistent,
		)
	})
}
