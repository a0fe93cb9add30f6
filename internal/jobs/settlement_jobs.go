package jobs

import (
	"context"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

// ReconcileProcessingSettlements polls the gateway for settlements that have
// been processing for a while and feeds the answer into reconcile.
func (jr *JobRunner) ReconcileProcessingSettlements() {
	jr.runWithRecovery("ReconcileProcessingSettlements", func(ctx context.Context) {
		cfg := jr.config.Settlement
		cutoff := jr.now().Add(-time.Duration(cfg.PollAfterMinutes) * time.Minute)

		settlements, err := jr.settlementRepo.ListByStatus(ctx, domain.SettlementStatusProcessing, cutoff, cfg.BatchSize)
		if err != nil {
			logger.Error("Failed to list processing settlements", "error", err)
			return
		}

		resolved := 0
		for _, st := range settlements {
			result, err := jr.gateway.Verify(ctx, st.Intent.IdempotencyKey)
			if err != nil {
				logger.Warn("Failed to verify settlement", "settlementID", st.ID, "chargeID", st.Intent.IdempotencyKey, "error", err)
				continue
			}
			if result.Status == domain.ExternalStatusPending {
				continue
			}

			reason := ""
			if result.Status == domain.ExternalStatusFailed {
				reason = result.FailureReason
			}
			if _, err := jr.services.Settlements.Reconcile(ctx, st.ID, result.Status, reason); err != nil {
				logger.Error("Failed to reconcile settlement", "settlementID", st.ID, "externalStatus", result.Status, "error", err)
				continue
			}
			resolved++
		}

		logger.Info("Polled processing settlements", "checked", len(settlements), "resolved", resolved)
	})
}

// RecoverStalePending finishes settlements left pending by a process that
// died between claim and dispatch.
func (jr *JobRunner) RecoverStalePending() {
	jr.runWithRecovery("RecoverStalePending", func(ctx context.Context) {
		cfg := jr.config.Settlement
		cutoff := jr.now().Add(-time.Duration(cfg.StalePendingMinutes) * time.Minute)

		settlements, err := jr.settlementRepo.ListByStatus(ctx, domain.SettlementStatusPending, cutoff, cfg.BatchSize)
		if err != nil {
			logger.Error("Failed to list stale pending settlements", "error", err)
			return
		}

		for _, st := range settlements {
			recovered, err := jr.services.Settlements.RecoverStale(ctx, st.ID)
			if err != nil {
				logger.Error("Failed to recover stale settlement", "settlementID", st.ID, "error", err)
				continue
			}
			logger.Info("Recovered stale settlement", "settlementID", st.ID, "status", recovered.Status)
		}
	})
}

// ExpireProcessingSettlements fails settlements the rail never settled
// within the processing timeout. A last verify still wins if the rail
// reports success, and a settlement is only expired on a definite answer.
func (jr *JobRunner) ExpireProcessingSettlements() {
	jr.runWithRecovery("ExpireProcessingSettlements", func(ctx context.Context) {
		cfg := jr.config.Settlement
		cutoff := jr.now().Add(-time.Duration(cfg.ProcessingTimeoutHours) * time.Hour)

		settlements, err := jr.settlementRepo.ListByStatus(ctx, domain.SettlementStatusProcessing, cutoff, cfg.BatchSize)
		if err != nil {
			logger.Error("Failed to list expired settlements", "error", err)
			return
		}

		expired := 0
		for _, st := range settlements {
			// Without an answer from the rail the settlement may still have
			// been paid; it is retried on the next run.
			result, err := jr.gateway.Verify(ctx, st.Intent.IdempotencyKey)
			if err != nil {
				logger.Warn("Skipping expiry, verify failed", "settlementID", st.ID, "chargeID", st.Intent.IdempotencyKey, "error", err)
				continue
			}
			status, reason := domain.ExternalStatusFailed, "settlement timed out"
			if result.Status == domain.ExternalStatusSuccess {
				status, reason = domain.ExternalStatusSuccess, ""
			}

			updated, err := jr.services.Settlements.Reconcile(ctx, st.ID, status, reason)
			if err != nil {
				logger.Error("Failed to expire settlement", "settlementID", st.ID, "error", err)
				continue
			}
			if updated.Status == domain.SettlementStatusFailed {
				expired++
			}
		}

		logger.Info("Expired processing settlements", "checked", len(settlements), "expired", expired)
	})
}
