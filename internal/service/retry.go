package service

import (
	"context"
	"fmt"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

// RetryConfig bounds manual retries per actor over a rolling window.
type RetryConfig struct {
	MaxAttempts int
	Window      time.Duration
}

type retryService struct {
	settlements    SettlementService
	settlementRepo repository.SettlementRepository
	accountRepo    repository.AccountRepository
	payoutRepo     repository.PayoutRepository
	activity       *activity
	cfg            RetryConfig
	now            func() time.Time
}

func NewRetryService(
	settlements SettlementService,
	settlementRepo repository.SettlementRepository,
	accountRepo repository.AccountRepository,
	payoutRepo repository.PayoutRepository,
	auditRepo repository.AuditRepository,
	cfg RetryConfig,
) RetryService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &retryService{
		settlements:    settlements,
		settlementRepo: settlementRepo,
		accountRepo:    accountRepo,
		payoutRepo:     payoutRepo,
		activity:       &activity{audit: auditRepo},
		cfg:            cfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Retry submits a new settlement cloned from a failed one. The source record
// is never modified; the new one points back at it through RetryOf.
func (s *retryService) Retry(ctx context.Context, req RetryRequest) (*domain.Settlement, error) {
	logger.EnterMethod("retryService.Retry", "settlementID", req.SettlementID, "actorID", req.ActorID)

	src, err := s.settlementRepo.GetByID(ctx, req.SettlementID)
	if err != nil {
		logger.ExitMethodWithError("retryService.Retry", err)
		return nil, err
	}
	if !req.IsAdmin && src.Intent.UserID != req.ActorID {
		return nil, domain.NewError(domain.KindNotAuthorized, "settlement %s does not belong to you", src.ID)
	}
	if src.Status != domain.SettlementStatusFailed {
		err := domain.NewError(domain.KindNotRetryable, "settlement %s is %s, only failed settlements can be retried", src.ID, src.Status)
		logger.ExitMethodWithError("retryService.Retry", err)
		return nil, err
	}

	retries, err := s.settlementRepo.ListRetriesOf(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range retries {
		if r.Status != domain.SettlementStatusFailed {
			err := domain.NewError(domain.KindNotRetryable, "settlement %s already has retry %s in %s", src.ID, r.ID, r.Status)
			logger.ExitMethodWithError("retryService.Retry", err)
			return nil, err
		}
	}

	recent, err := s.settlementRepo.CountRetriesByActor(ctx, req.ActorID, s.now().Add(-s.cfg.Window))
	if err != nil {
		return nil, err
	}
	if recent >= s.cfg.MaxAttempts {
		err := domain.NewError(domain.KindRateLimited, "retry limit of %d per %s reached", s.cfg.MaxAttempts, s.cfg.Window)
		logger.ExitMethodWithError("retryService.Retry", err, "actorID", req.ActorID)
		return nil, err
	}

	intent := src.Intent
	intent.ID = ""
	intent.IdempotencyKey = fmt.Sprintf("retry:%s:%d", src.ID, len(retries)+1)
	intent.RetryOf = &src.ID
	intent.RequestedBy = req.ActorID

	if req.AccountID != "" {
		account, err := s.accountRepo.GetAccount(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		if account.UserID != src.Intent.UserID {
			return nil, domain.NewError(domain.KindNotAuthorized, "account %s does not belong to the settlement owner", req.AccountID)
		}
		intent.Rail = account.Rail
		intent.RailDetails = account.Details
	}
	if req.RailDetails != nil {
		intent.RailDetails = *req.RailDetails
	}

	st, err := s.settlements.Submit(ctx, intent)
	if st != nil {
		s.linkPayout(ctx, st)
		s.activity.record(ctx, "settlement.retry", "settlement", st.ID, req.ActorID, map[string]string{
			"retry_of": src.ID,
			"status":   string(st.Status),
		})
	}
	if err != nil {
		logger.ExitMethodWithError("retryService.Retry", err, "retryOf", src.ID)
		return st, err
	}
	logger.ExitMethod("retryService.Retry", "settlementID", st.ID, "retryOf", src.ID)
	return st, nil
}

func (s *retryService) linkPayout(ctx context.Context, st *domain.Settlement) {
	if st.Intent.PayoutID == nil || s.payoutRepo == nil {
		return
	}
	p, err := s.payoutRepo.GetByID(ctx, *st.Intent.PayoutID)
	if err != nil {
		logger.Warn("Failed to load payout for retry", "payoutID", *st.Intent.PayoutID, "error", err)
		return
	}
	if p.SettlementID != nil && *p.SettlementID == st.ID {
		return
	}
	p.Attempts++
	p.SettlementID = &st.ID
	p.Status = payoutStatusFor(st.Status)
	if err := s.payoutRepo.Update(ctx, p); err != nil {
		logger.Warn("Failed to link retry to payout", "payoutID", p.ID, "settlementID", st.ID, "error", err)
	}
}
