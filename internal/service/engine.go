package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/metrics"
	"chipereganyu-settlement/internal/repository"
	"chipereganyu-settlement/internal/utils"
)

// EngineConfig holds the fee schedule and limits applied to every intent.
type EngineConfig struct {
	Fees           utils.FeeSchedule
	MinGrossAmount int64
}

type settlementEngine struct {
	settlementRepo   repository.SettlementRepository
	payoutRepo       repository.PayoutRepository
	contributionRepo repository.ContributionRepository
	reserve          ReserveService
	gateway          Gateway
	activity         *activity
	fees             utils.FeeSchedule
	minGross         int64
	now              func() time.Time
}

func NewSettlementService(
	settlementRepo repository.SettlementRepository,
	payoutRepo repository.PayoutRepository,
	contributionRepo repository.ContributionRepository,
	notificationRepo repository.NotificationRepository,
	auditRepo repository.AuditRepository,
	reserve ReserveService,
	gateway Gateway,
	cfg EngineConfig,
) SettlementService {
	fees := cfg.Fees
	if fees == (utils.FeeSchedule{}) {
		fees = utils.DefaultFeeSchedule
	}
	return &settlementEngine{
		settlementRepo:   settlementRepo,
		payoutRepo:       payoutRepo,
		contributionRepo: contributionRepo,
		reserve:          reserve,
		gateway:          gateway,
		activity:         &activity{notifications: notificationRepo, audit: auditRepo},
		fees:             fees,
		minGross:         cfg.MinGrossAmount,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// compensation lists the reserve movements to reverse when a settlement fails.
type compensation struct {
	refundFee   bool
	returnCover bool
}

// Submit accepts an intent and dispatches it at most once per idempotency key.
// When the rail refuses the dispatch the failed settlement is returned together
// with the gateway error.
func (s *settlementEngine) Submit(ctx context.Context, intent domain.SettlementIntent) (*domain.Settlement, error) {
	logger.EnterMethod("settlementEngine.Submit", "idempotencyKey", intent.IdempotencyKey, "direction", intent.Direction, "rail", intent.Rail)

	if err := intent.Validate(); err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "reason", "invalid intent")
		return nil, err
	}
	if intent.GrossAmount < s.minGross {
		err := domain.NewError(domain.KindInvalidAmount, "amount %d is below the minimum of %d", intent.GrossAmount, s.minGross)
		logger.ExitMethodWithError("settlementEngine.Submit", err)
		return nil, err
	}
	route, err := s.gateway.Resolve(intent.Direction, intent.Rail, intent.RailDetails)
	if err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "reason", "rail details did not resolve")
		return nil, err
	}
	fees, err := s.computeFees(intent)
	if err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "reason", "fee computation failed")
		return nil, err
	}

	existing, err := s.settlementRepo.GetByIdempotencyKey(ctx, intent.IdempotencyKey)
	if err == nil {
		logger.ExitMethod("settlementEngine.Submit", "settlementID", existing.ID, "replayed", true)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		logger.ExitMethodWithError("settlementEngine.Submit", err)
		return nil, err
	}

	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	now := s.now()
	st := &domain.Settlement{
		ID:        uuid.NewString(),
		Intent:    intent,
		Fees:      fees,
		Status:    domain.SettlementStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.settlementRepo.Claim(ctx, st)
	if err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "reason", "claim failed")
		return nil, err
	}
	if !created {
		logger.ExitMethod("settlementEngine.Submit", "idempotencyKey", intent.IdempotencyKey, "replayed", true)
		return s.settlementRepo.GetByIdempotencyKey(ctx, intent.IdempotencyKey)
	}
	logger.Transition(st.ID, "", string(st.Status), "idempotencyKey", intent.IdempotencyKey, "netAmount", fees.NetAmount)

	// Once claimed the settlement must reach an honest state even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.reserveForDispatch(ctx, st); err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "settlementID", st.ID)
		return st, err
	}

	st, err = s.dispatch(ctx, st, route)
	if err != nil {
		logger.ExitMethodWithError("settlementEngine.Submit", err, "settlementID", st.ID, "status", st.Status)
		return st, err
	}
	logger.ExitMethod("settlementEngine.Submit", "settlementID", st.ID, "status", st.Status)
	return st, nil
}

func (s *settlementEngine) computeFees(intent domain.SettlementIntent) (domain.FeeBreakdown, error) {
	if !intent.ChargesFees() {
		return domain.FeeBreakdown{GrossAmount: intent.GrossAmount, NetAmount: intent.GrossAmount}, nil
	}
	return s.fees.ComputeFeesFromGross(intent.GrossAmount)
}

// reserveForDispatch underwrites the shortfall and credits the reserve fee of
// a payout, then checkpoints the pending row so recovery can tell whether
// dispatch could have happened.
func (s *settlementEngine) reserveForDispatch(ctx context.Context, st *domain.Settlement) error {
	if !st.Intent.ChargesFees() {
		return nil
	}
	if st.Intent.ShortfallCover == 0 && st.Fees.ReserveFee == 0 {
		return nil
	}

	if cover := st.Intent.ShortfallCover; cover > 0 {
		entry, err := s.reserve.Debit(ctx, s.movement(st, cover, "payout shortfall cover"))
		if err != nil {
			if ferr := s.fail(ctx, st, domain.SettlementStatusPending, err.Error(), compensation{}); ferr != nil {
				return ferr
			}
			return err
		}
		// Marks the checkpoint when there is no fee entry to point at.
		st.ReserveEntryID = &entry.ID
	}

	if fee := st.Fees.ReserveFee; fee > 0 {
		entry, err := s.reserve.Credit(ctx, s.movement(st, fee, "reserve fee"))
		if err != nil {
			if ferr := s.fail(ctx, st, domain.SettlementStatusPending, "reserve fee credit failed", compensation{returnCover: true}); ferr != nil {
				return ferr
			}
			return err
		}
		st.ReserveEntryID = &entry.ID
	}

	if err := s.settlementRepo.Transition(ctx, st, domain.SettlementStatusPending); err != nil {
		if ferr := s.fail(ctx, st, domain.SettlementStatusPending, "checkpoint failed", compensation{refundFee: true, returnCover: true}); ferr != nil {
			return ferr
		}
		return err
	}
	return nil
}

func (s *settlementEngine) dispatch(ctx context.Context, st *domain.Settlement, route domain.Route) (*domain.Settlement, error) {
	result, err := s.gateway.Initiate(ctx, domain.GatewayRequest{
		Direction: st.Intent.Direction,
		Route:     route,
		Amount:    st.AmountOnRail(),
		ChargeID:  st.Intent.IdempotencyKey,
	})

	now := s.now()
	switch {
	case err == nil:
		st.Status = domain.SettlementStatusProcessing
		st.ExternalReference = result.ExternalRef
		if st.ExternalReference == "" {
			st.ExternalReference = st.Intent.IdempotencyKey
		}
		st.DispatchConfirmed = true
		st.PaymentAccount = result.PaymentAccount
		st.ProcessingAt = &now

	case errors.Is(err, domain.ErrGatewayTimeout):
		// The rail may have accepted the request; the poll decides.
		logger.Warn("Gateway timed out, settlement left unconfirmed", "settlementID", st.ID, "error", err)
		st.Status = domain.SettlementStatusProcessing
		st.ExternalReference = st.Intent.IdempotencyKey
		st.DispatchConfirmed = false
		st.ProcessingAt = &now

	default:
		if ferr := s.fail(ctx, st, domain.SettlementStatusPending, err.Error(), compensation{refundFee: true, returnCover: true}); ferr != nil {
			return st, ferr
		}
		return st, err
	}

	if err := s.settlementRepo.Transition(ctx, st, domain.SettlementStatusPending); err != nil {
		return st, err
	}
	s.transitioned(ctx, st, domain.SettlementStatusPending)
	return st, nil
}

// fail moves st to failed and reverses the reserve movements named in comp.
// A reversal that cannot be written flags the settlement for reconciliation.
func (s *settlementEngine) fail(ctx context.Context, st *domain.Settlement, from domain.SettlementStatus, reason string, comp compensation) error {
	now := s.now()
	st.Status = domain.SettlementStatusFailed
	st.FailureReason = reason
	st.FailedAt = &now
	st.ProcessedAt = &now
	if err := s.settlementRepo.Transition(ctx, st, from); err != nil {
		return err
	}
	s.transitioned(ctx, st, from)

	if err := s.compensate(ctx, st, comp); err != nil {
		return s.flagForReconciliation(ctx, st, err)
	}
	return nil
}

func (s *settlementEngine) compensate(ctx context.Context, st *domain.Settlement, comp compensation) error {
	var errs []error
	if comp.returnCover && st.Intent.ShortfallCover > 0 {
		if _, err := s.reserve.Credit(ctx, s.movement(st, st.Intent.ShortfallCover, "shortfall cover returned")); err != nil {
			errs = append(errs, fmt.Errorf("return shortfall cover: %w", err))
		}
	}
	if comp.refundFee && st.ReserveEntryID != nil && st.Fees.ReserveFee > 0 {
		if _, err := s.reserve.Debit(ctx, s.movement(st, st.Fees.ReserveFee, "reserve fee reversal")); err != nil {
			errs = append(errs, fmt.Errorf("reverse reserve fee: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *settlementEngine) flagForReconciliation(ctx context.Context, st *domain.Settlement, cause error) error {
	st.ReconciliationRequired = true
	logger.ReconciliationRequired(st.ID, cause, "status", st.Status, "reason", st.FailureReason)
	metrics.ReconciliationRequired.Inc()

	if err := s.settlementRepo.Transition(ctx, st, st.Status); err != nil {
		logger.Error("Failed to persist reconciliation flag", "settlementID", st.ID, "error", err)
	}
	s.activity.record(ctx, "settlement.reconciliation_required", "settlement", st.ID, st.Intent.RequestedBy, map[string]string{
		"error": cause.Error(),
	})
	return domain.WrapError(domain.KindReconciliationRequired, cause, "settlement %s requires manual reconciliation", st.ID)
}

func (s *settlementEngine) Reconcile(ctx context.Context, settlementID string, status domain.ExternalStatus, reason string) (*domain.Settlement, error) {
	st, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, st, status, reason)
}

func (s *settlementEngine) ReconcileByReference(ctx context.Context, ref string, status domain.ExternalStatus, reason string) (*domain.Settlement, error) {
	st, err := s.settlementRepo.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, st, status, reason)
}

func (s *settlementEngine) reconcile(ctx context.Context, st *domain.Settlement, status domain.ExternalStatus, reason string) (*domain.Settlement, error) {
	logger.EnterMethod("settlementEngine.reconcile", "settlementID", st.ID, "status", st.Status, "externalStatus", status)

	if st.Status.IsTerminal() {
		logger.ExitMethod("settlementEngine.reconcile", "settlementID", st.ID, "noop", true)
		return st, nil
	}
	if st.Status == domain.SettlementStatusPending {
		err := domain.NewError(domain.KindInvalidTransition, "settlement %s has not been dispatched", st.ID)
		logger.ExitMethodWithError("settlementEngine.reconcile", err)
		return st, err
	}

	switch status {
	case domain.ExternalStatusPending:
		logger.ExitMethod("settlementEngine.reconcile", "settlementID", st.ID, "noop", true)
		return st, nil

	case domain.ExternalStatusSuccess:
		now := s.now()
		st.Status = domain.SettlementStatusCompleted
		st.DispatchConfirmed = true
		st.CompletedAt = &now
		st.ProcessedAt = &now
		if err := s.settlementRepo.Transition(ctx, st, domain.SettlementStatusProcessing); err != nil {
			return s.afterConflict(ctx, st.ID, err)
		}
		s.transitioned(ctx, st, domain.SettlementStatusProcessing)

	case domain.ExternalStatusFailed:
		if reason == "" {
			reason = "rejected by payment rail"
		}
		// A fee credited for a dispatch the rail never confirmed is reversed;
		// once confirmed it is kept.
		comp := compensation{refundFee: !st.DispatchConfirmed, returnCover: true}
		if err := s.fail(ctx, st, domain.SettlementStatusProcessing, reason, comp); err != nil {
			if errors.Is(err, domain.ErrReconciliationRequired) {
				return st, err
			}
			return s.afterConflict(ctx, st.ID, err)
		}

	default:
		return st, domain.NewError(domain.KindInvalidIntent, "unknown external status %q", status)
	}

	logger.ExitMethod("settlementEngine.reconcile", "settlementID", st.ID, "status", st.Status)
	return st, nil
}

// afterConflict returns the stored settlement when a concurrent writer won the
// conditional update.
func (s *settlementEngine) afterConflict(ctx context.Context, settlementID string, err error) (*domain.Settlement, error) {
	if !errors.Is(err, domain.ErrInvalidTransition) {
		return nil, err
	}
	current, gerr := s.settlementRepo.GetByID(ctx, settlementID)
	if gerr != nil {
		return nil, gerr
	}
	if current.Status.IsTerminal() {
		return current, nil
	}
	return current, err
}

// RecoverStale handles a settlement left pending by a process that died
// between claim and dispatch.
func (s *settlementEngine) RecoverStale(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	st, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if st.Status != domain.SettlementStatusPending {
		return st, nil
	}

	reserveMoved := st.Intent.ShortfallCover > 0 || st.Fees.ReserveFee > 0
	if st.Intent.ChargesFees() && reserveMoved && st.ReserveEntryID == nil {
		// The checkpoint was never written, so nothing was dispatched.
		if err := s.fail(ctx, st, domain.SettlementStatusPending, "dispatch interrupted", compensation{}); err != nil {
			return s.afterConflict(ctx, st.ID, err)
		}
		if st.Intent.ShortfallCover > 0 {
			// The cover debit may or may not have been written.
			return st, s.flagForReconciliation(ctx, st, errors.New("shortfall cover state unknown after interrupted dispatch"))
		}
		return st, nil
	}

	now := s.now()
	st.Status = domain.SettlementStatusProcessing
	st.DispatchConfirmed = false
	if st.ExternalReference == "" {
		st.ExternalReference = st.Intent.IdempotencyKey
	}
	st.ProcessingAt = &now
	if err := s.settlementRepo.Transition(ctx, st, domain.SettlementStatusPending); err != nil {
		return s.afterConflict(ctx, st.ID, err)
	}
	s.transitioned(ctx, st, domain.SettlementStatusPending)
	return st, nil
}

func (s *settlementEngine) GetSettlement(ctx context.Context, settlementID string) (*domain.Settlement, error) {
	return s.settlementRepo.GetByID(ctx, settlementID)
}

func (s *settlementEngine) movement(st *domain.Settlement, amount int64, reason string) domain.ReserveMovement {
	m := domain.ReserveMovement{Amount: amount, SettlementID: &st.ID, Reason: reason}
	if st.Intent.GroupID != "" {
		groupID := st.Intent.GroupID
		m.GroupID = &groupID
	}
	if st.Intent.UserID != "" {
		userID := st.Intent.UserID
		m.UserID = &userID
	}
	return m
}

// transitioned runs the side effects of a persisted transition. None of them
// can undo it.
func (s *settlementEngine) transitioned(ctx context.Context, st *domain.Settlement, from domain.SettlementStatus) {
	logger.Transition(st.ID, string(from), string(st.Status),
		"direction", st.Intent.Direction,
		"externalReference", st.ExternalReference,
		"dispatchConfirmed", st.DispatchConfirmed,
		"failureReason", st.FailureReason,
	)
	metrics.SettlementTransitions.WithLabelValues(string(st.Intent.Direction), string(st.Intent.Rail), string(st.Status)).Inc()

	s.syncLinked(ctx, st)
	s.announce(ctx, st)
	s.activity.record(ctx, "settlement."+string(st.Status), "settlement", st.ID, st.Intent.RequestedBy, map[string]string{
		"from":               string(from),
		"to":                 string(st.Status),
		"external_reference": st.ExternalReference,
		"failure_reason":     st.FailureReason,
	})
}

// syncLinked mirrors the settlement status onto the payout or contribution it
// settles.
func (s *settlementEngine) syncLinked(ctx context.Context, st *domain.Settlement) {
	if id := st.Intent.PayoutID; id != nil && s.payoutRepo != nil {
		if err := s.payoutRepo.UpdateStatus(ctx, *id, payoutStatusFor(st.Status)); err != nil {
			logger.Warn("Failed to update payout status", "payoutID", *id, "settlementID", st.ID, "error", err)
		}
	}
	if id := st.Intent.ContributionID; id != nil && s.contributionRepo != nil {
		if err := s.contributionRepo.UpdateStatus(ctx, *id, contributionStatusFor(st.Status), &st.ID); err != nil {
			logger.Warn("Failed to update contribution status", "contributionID", *id, "settlementID", st.ID, "error", err)
		}
	}
}

func payoutStatusFor(status domain.SettlementStatus) domain.PayoutStatus {
	switch status {
	case domain.SettlementStatusCompleted:
		return domain.PayoutStatusCompleted
	case domain.SettlementStatusFailed:
		return domain.PayoutStatusFailed
	}
	return domain.PayoutStatusProcessing
}

func contributionStatusFor(status domain.SettlementStatus) domain.ContributionStatus {
	switch status {
	case domain.SettlementStatusCompleted:
		return domain.ContributionStatusCompleted
	case domain.SettlementStatusFailed:
		return domain.ContributionStatusFailed
	}
	return domain.ContributionStatusPending
}

func (s *settlementEngine) announce(ctx context.Context, st *domain.Settlement) {
	noun := map[domain.Direction]string{
		domain.DirectionCollection: "contribution",
		domain.DirectionPayout:     "payout",
		domain.DirectionReversal:   "refund",
	}[st.Intent.Direction]
	amount := st.AmountOnRail()

	var eventType, title, message string
	switch st.Status {
	case domain.SettlementStatusProcessing:
		eventType = domain.NotificationSettlementProcessing
		title = "Payment in progress"
		message = fmt.Sprintf("Your %s of %d is being processed.", noun, amount)
	case domain.SettlementStatusCompleted:
		eventType = domain.NotificationSettlementCompleted
		title = "Payment completed"
		message = fmt.Sprintf("Your %s of %d has been completed.", noun, amount)
	case domain.SettlementStatusFailed:
		eventType = domain.NotificationSettlementFailed
		title = "Payment failed"
		message = fmt.Sprintf("Your %s of %d failed: %s", noun, amount, st.FailureReason)
	default:
		return
	}

	s.activity.notify(ctx, st.Intent.UserID, eventType, title, message, map[string]string{
		"settlement_id": st.ID,
		"direction":     string(st.Intent.Direction),
		"amount":        fmt.Sprintf("%d", amount),
	})
}
