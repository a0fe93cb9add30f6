package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/metrics"
	"chipereganyu-settlement/internal/repository"
)

// DisputeConfig holds the dispute filing rules.
type DisputeConfig struct {
	MinReasonLength int
}

type disputeService struct {
	settlements    SettlementService
	disputeRepo    repository.DisputeRepository
	settlementRepo repository.SettlementRepository
	accountRepo    repository.AccountRepository
	activity       *activity
	cfg            DisputeConfig
	now            func() time.Time
}

func NewDisputeService(
	settlements SettlementService,
	disputeRepo repository.DisputeRepository,
	settlementRepo repository.SettlementRepository,
	accountRepo repository.AccountRepository,
	notificationRepo repository.NotificationRepository,
	auditRepo repository.AuditRepository,
	cfg DisputeConfig,
) DisputeService {
	if cfg.MinReasonLength <= 0 {
		cfg.MinReasonLength = 20
	}
	return &disputeService{
		settlements:    settlements,
		disputeRepo:    disputeRepo,
		settlementRepo: settlementRepo,
		accountRepo:    accountRepo,
		activity:       &activity{notifications: notificationRepo, audit: auditRepo},
		cfg:            cfg,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *disputeService) FileDispute(ctx context.Context, req FileDisputeRequest) (*domain.Dispute, error) {
	logger.EnterMethod("disputeService.FileDispute", "transactionID", req.TransactionID, "userID", req.UserID, "type", req.Type)

	if !req.Type.Valid() {
		return nil, domain.NewError(domain.KindInvalidIntent, "unknown dispute type %q", req.Type)
	}
	reason := strings.TrimSpace(req.Reason)
	if utf8.RuneCountInString(reason) < s.cfg.MinReasonLength {
		err := domain.NewError(domain.KindInvalidReason, "reason must be at least %d characters", s.cfg.MinReasonLength)
		logger.ExitMethodWithError("disputeService.FileDispute", err)
		return nil, err
	}

	st, err := s.settlementRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		logger.ExitMethodWithError("disputeService.FileDispute", err)
		return nil, err
	}
	if st.Intent.UserID != req.UserID {
		logger.ExitMethodWithError("disputeService.FileDispute", domain.ErrNotAuthorized, "transactionID", req.TransactionID)
		return nil, domain.NewError(domain.KindNotAuthorized, "transaction %s does not belong to you", req.TransactionID)
	}

	amount := req.Amount
	if amount == 0 {
		amount = st.AmountOnRail()
	}
	if amount < 0 || amount > st.AmountOnRail() {
		return nil, domain.NewError(domain.KindInvalidAmount, "disputed amount must be between 1 and %d", st.AmountOnRail())
	}

	now := s.now()
	d := &domain.Dispute{
		ID:            uuid.NewString(),
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
		Type:          req.Type,
		Reason:        reason,
		Amount:        amount,
		Evidence:      req.Evidence,
		Status:        domain.DisputeStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.disputeRepo.Create(ctx, d); err != nil {
		logger.ExitMethodWithError("disputeService.FileDispute", err, "transactionID", req.TransactionID)
		return nil, err
	}
	metrics.Disputes.WithLabelValues(string(domain.DisputeStatusPending)).Inc()

	s.activity.notify(ctx, req.UserID, domain.NotificationDisputeFiled, "Dispute received",
		fmt.Sprintf("We received your dispute about transaction %s and will review it.", req.TransactionID),
		map[string]string{"dispute_id": d.ID, "transaction_id": req.TransactionID})
	s.activity.record(ctx, "dispute.filed", "dispute", d.ID, req.UserID, map[string]string{
		"transaction_id": req.TransactionID,
		"type":           string(req.Type),
		"amount":         fmt.Sprintf("%d", amount),
	})

	logger.ExitMethod("disputeService.FileDispute", "disputeID", d.ID)
	return d, nil
}

// ResolveDispute closes a pending dispute. Approval submits a reversal and
// marks the dispute approved once the rail has accepted it; a reversal the
// rail refuses leaves the dispute pending.
func (s *disputeService) ResolveDispute(ctx context.Context, disputeID, adminID string, resolution domain.DisputeStatus, adminNotes string) (*domain.Dispute, error) {
	logger.EnterMethod("disputeService.ResolveDispute", "disputeID", disputeID, "adminID", adminID, "resolution", resolution)

	if resolution != domain.DisputeStatusApproved && resolution != domain.DisputeStatusRejected {
		return nil, domain.NewError(domain.KindInvalidIntent, "resolution must be approved or rejected, got %q", resolution)
	}

	d, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		logger.ExitMethodWithError("disputeService.ResolveDispute", err)
		return nil, err
	}
	if d.Status != domain.DisputeStatusPending {
		logger.ExitMethodWithError("disputeService.ResolveDispute", domain.ErrAlreadyResolved, "status", d.Status)
		return nil, domain.NewError(domain.KindAlreadyResolved, "dispute %s is already %s", disputeID, d.Status)
	}
	notes := strings.TrimSpace(adminNotes)
	if notes == "" {
		return nil, domain.ErrMissingNotes
	}

	if resolution == domain.DisputeStatusApproved {
		refund, err := s.submitReversal(ctx, d, adminID)
		if err != nil {
			logger.ExitMethodWithError("disputeService.ResolveDispute", err, "disputeID", disputeID)
			return nil, err
		}
		d.RefundSettlementID = &refund.ID
	}

	now := s.now()
	d.Status = resolution
	d.AdminNotes = notes
	d.ResolvedAt = &now
	d.ResolvedBy = &adminID
	if err := s.disputeRepo.Resolve(ctx, d); err != nil {
		logger.ExitMethodWithError("disputeService.ResolveDispute", err, "disputeID", disputeID)
		return nil, err
	}
	metrics.Disputes.WithLabelValues(string(resolution)).Inc()

	message := fmt.Sprintf("Your dispute about transaction %s was rejected: %s", d.TransactionID, notes)
	if resolution == domain.DisputeStatusApproved {
		message = fmt.Sprintf("Your dispute about transaction %s was approved. A refund of %d is on its way.", d.TransactionID, d.Amount)
	}
	s.activity.notify(ctx, d.UserID, domain.NotificationDisputeResolved, "Dispute resolved", message,
		map[string]string{"dispute_id": d.ID, "status": string(resolution)})

	details := map[string]string{"status": string(resolution), "notes": notes}
	if d.RefundSettlementID != nil {
		details["refund_settlement_id"] = *d.RefundSettlementID
	}
	s.activity.record(ctx, "dispute.resolved", "dispute", d.ID, adminID, details)

	logger.ExitMethod("disputeService.ResolveDispute", "disputeID", disputeID, "status", resolution)
	return d, nil
}

func (s *disputeService) submitReversal(ctx context.Context, d *domain.Dispute, adminID string) (*domain.Settlement, error) {
	// A refund still in flight from an earlier approval is reused. A new key
	// is only minted once every earlier refund has failed.
	previous, err := s.settlementRepo.ListByDispute(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for i := range previous {
		if previous[i].Status != domain.SettlementStatusFailed {
			logger.Info("Reusing refund of earlier approval", "disputeID", d.ID, "settlementID", previous[i].ID, "status", previous[i].Status)
			return &previous[i], nil
		}
	}

	src, err := s.settlementRepo.GetByID(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}

	rail, details := src.Intent.Rail, src.Intent.RailDetails
	if src.Intent.Direction == domain.DirectionCollection && rail == domain.RailBankTransfer {
		// A virtual account cannot be paid back; use the member's own account.
		account, err := s.accountRepo.GetPrimaryAccount(ctx, d.UserID)
		if err != nil {
			return nil, err
		}
		rail, details = account.Rail, account.Details
	}

	disputeID := d.ID
	refund, err := s.settlements.Submit(ctx, domain.SettlementIntent{
		Direction:      domain.DirectionReversal,
		GroupID:        src.Intent.GroupID,
		UserID:         d.UserID,
		GrossAmount:    d.Amount,
		Rail:           rail,
		RailDetails:    details,
		IdempotencyKey: fmt.Sprintf("dispute:%s:%d", d.ID, len(previous)+1),
		DisputeID:      &disputeID,
		RequestedBy:    adminID,
	})
	if err != nil {
		return nil, err
	}
	if refund.Status == domain.SettlementStatusFailed {
		return nil, domain.NewError(domain.KindGatewayRejected, "refund %s failed: %s", refund.ID, refund.FailureReason)
	}
	return refund, nil
}

func (s *disputeService) ListDisputes(ctx context.Context, status domain.DisputeStatus, page, pageSize int) ([]domain.Dispute, int, error) {
	limit, offset := paginate(page, pageSize)
	return s.disputeRepo.List(ctx, status, limit, offset)
}
