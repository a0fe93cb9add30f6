package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

type payoutService struct {
	settlements      SettlementService
	payoutRepo       repository.PayoutRepository
	contributionRepo repository.ContributionRepository
	accountRepo      repository.AccountRepository
	activity         *activity
	now              func() time.Time
}

func NewPayoutService(
	settlements SettlementService,
	payoutRepo repository.PayoutRepository,
	contributionRepo repository.ContributionRepository,
	accountRepo repository.AccountRepository,
	auditRepo repository.AuditRepository,
) PayoutService {
	return &payoutService{
		settlements:      settlements,
		payoutRepo:       payoutRepo,
		contributionRepo: contributionRepo,
		accountRepo:      accountRepo,
		activity:         &activity{audit: auditRepo},
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *payoutService) SubmitContribution(ctx context.Context, req ContributionRequest) (*domain.Settlement, error) {
	logger.EnterMethod("payoutService.SubmitContribution", "groupID", req.GroupID, "userID", req.UserID, "cycle", req.CycleNumber)

	chargeID := req.ChargeID
	if chargeID == "" {
		chargeID = uuid.NewString()
	}
	contributionID := uuid.NewString()

	st, err := s.settlements.Submit(ctx, domain.SettlementIntent{
		Direction:      domain.DirectionCollection,
		GroupID:        req.GroupID,
		UserID:         req.UserID,
		GrossAmount:    req.Amount,
		Rail:           req.Rail,
		RailDetails:    req.RailDetails,
		IdempotencyKey: chargeID,
		ContributionID: &contributionID,
		RequestedBy:    req.UserID,
	})
	if st == nil {
		logger.ExitMethodWithError("payoutService.SubmitContribution", err)
		return nil, err
	}

	// A replayed charge id returns the settlement of the first request, which
	// already has its contribution row.
	if st.Intent.ContributionID != nil && *st.Intent.ContributionID == contributionID {
		c := &domain.Contribution{
			ID:           contributionID,
			GroupID:      req.GroupID,
			UserID:       req.UserID,
			CycleNumber:  req.CycleNumber,
			Amount:       req.Amount,
			Status:       contributionStatusFor(st.Status),
			SettlementID: &st.ID,
			CreatedAt:    s.now(),
		}
		if cerr := s.contributionRepo.Create(ctx, c); cerr != nil {
			logger.Error("Failed to record contribution", "contributionID", contributionID, "settlementID", st.ID, "error", cerr)
		}
	}

	if err != nil {
		logger.ExitMethodWithError("payoutService.SubmitContribution", err, "settlementID", st.ID)
		return st, err
	}
	logger.ExitMethod("payoutService.SubmitContribution", "settlementID", st.ID, "status", st.Status)
	return st, nil
}

// RequestInstantPayout lets the recipient draw a due payout to one of their
// own accounts.
func (s *payoutService) RequestInstantPayout(ctx context.Context, payoutID, accountID, requesterID string) (*domain.Settlement, error) {
	logger.EnterMethod("payoutService.RequestInstantPayout", "payoutID", payoutID, "accountID", accountID)

	p, err := s.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		logger.ExitMethodWithError("payoutService.RequestInstantPayout", err)
		return nil, err
	}
	if p.RecipientID != requesterID {
		logger.ExitMethodWithError("payoutService.RequestInstantPayout", domain.ErrNotAuthorized, "payoutID", payoutID)
		return nil, domain.NewError(domain.KindNotAuthorized, "payout %s does not belong to you", payoutID)
	}
	if p.Status != domain.PayoutStatusScheduled {
		return nil, domain.NewError(domain.KindInvalidIntent, "payout %s is %s", payoutID, p.Status)
	}
	if s.now().Before(p.DueDate) {
		return nil, domain.NewError(domain.KindInvalidIntent, "payout %s is not due until %s", payoutID, p.DueDate.Format("2006-01-02"))
	}

	account, err := s.accountRepo.GetAccount(ctx, accountID)
	if err != nil {
		logger.ExitMethodWithError("payoutService.RequestInstantPayout", err)
		return nil, err
	}
	if account.UserID != requesterID {
		return nil, domain.NewError(domain.KindNotAuthorized, "account %s does not belong to you", accountID)
	}

	st, err := s.dispatchPayout(ctx, p, account, requesterID)
	logger.ExitMethod("payoutService.RequestInstantPayout", "payoutID", payoutID)
	return st, err
}

// TriggerManualPayout is the admin override: it ignores the due date, can
// re-run a failed payout, and pays to the recipient's primary account.
func (s *payoutService) TriggerManualPayout(ctx context.Context, payoutID, adminID string) (*domain.Settlement, error) {
	logger.EnterMethod("payoutService.TriggerManualPayout", "payoutID", payoutID, "adminID", adminID)

	p, err := s.payoutRepo.GetByID(ctx, payoutID)
	if err != nil {
		logger.ExitMethodWithError("payoutService.TriggerManualPayout", err)
		return nil, err
	}
	if p.Status != domain.PayoutStatusScheduled && p.Status != domain.PayoutStatusFailed {
		return nil, domain.NewError(domain.KindInvalidIntent, "payout %s is %s", payoutID, p.Status)
	}

	account, err := s.accountRepo.GetPrimaryAccount(ctx, p.RecipientID)
	if err != nil {
		logger.ExitMethodWithError("payoutService.TriggerManualPayout", err)
		return nil, err
	}

	st, err := s.dispatchPayout(ctx, p, account, adminID)
	if st != nil {
		s.activity.record(ctx, "payout.manual", "payout", p.ID, adminID, map[string]string{
			"settlement_id": st.ID,
			"status":        string(st.Status),
		})
	}
	logger.ExitMethod("payoutService.TriggerManualPayout", "payoutID", payoutID)
	return st, err
}

// dispatchPayout submits the next attempt of a payout. Concurrent requests
// read the same attempt number and collapse into one settlement.
func (s *payoutService) dispatchPayout(ctx context.Context, p *domain.Payout, account *domain.PayoutAccount, actorID string) (*domain.Settlement, error) {
	collected, err := s.contributionRepo.SumCompleted(ctx, p.GroupID, p.CycleNumber)
	if err != nil {
		return nil, err
	}
	var shortfall int64
	if collected < p.Amount {
		shortfall = p.Amount - collected
	}

	attempt := p.Attempts + 1
	payoutID := p.ID
	st, err := s.settlements.Submit(ctx, domain.SettlementIntent{
		Direction:      domain.DirectionPayout,
		GroupID:        p.GroupID,
		UserID:         p.RecipientID,
		GrossAmount:    p.Amount,
		Rail:           account.Rail,
		RailDetails:    account.Details,
		IdempotencyKey: fmt.Sprintf("payout:%s:%d", p.ID, attempt),
		ShortfallCover: shortfall,
		PayoutID:       &payoutID,
		RequestedBy:    actorID,
	})
	if st == nil {
		return nil, err
	}

	p.Attempts = attempt
	p.SettlementID = &st.ID
	p.Status = payoutStatusFor(st.Status)
	if uerr := s.payoutRepo.Update(ctx, p); uerr != nil {
		logger.Error("Failed to update payout", "payoutID", p.ID, "settlementID", st.ID, "error", uerr)
	}
	return st, err
}
