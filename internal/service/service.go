package service

import (
	"context"

	"chipereganyu-settlement/internal/domain"
)

// SettlementService drives settlements through their state machine.
type SettlementService interface {
	Submit(ctx context.Context, intent domain.SettlementIntent) (*domain.Settlement, error)
	Reconcile(ctx context.Context, settlementID string, status domain.ExternalStatus, reason string) (*domain.Settlement, error)
	ReconcileByReference(ctx context.Context, ref string, status domain.ExternalStatus, reason string) (*domain.Settlement, error)
	RecoverStale(ctx context.Context, settlementID string) (*domain.Settlement, error)
	GetSettlement(ctx context.Context, settlementID string) (*domain.Settlement, error)
}

type ReserveService interface {
	Credit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error)
	Debit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error)
	CurrentBalance(ctx context.Context) (int64, error)
	ListEntries(ctx context.Context, page, pageSize int) ([]domain.ReserveLedgerEntry, int, error)
	Audit(ctx context.Context) (*domain.ReserveAudit, error)
}

type PayoutService interface {
	SubmitContribution(ctx context.Context, req ContributionRequest) (*domain.Settlement, error)
	RequestInstantPayout(ctx context.Context, payoutID, accountID, requesterID string) (*domain.Settlement, error)
	TriggerManualPayout(ctx context.Context, payoutID, adminID string) (*domain.Settlement, error)
}

type RetryService interface {
	Retry(ctx context.Context, req RetryRequest) (*domain.Settlement, error)
}

type DisputeService interface {
	FileDispute(ctx context.Context, req FileDisputeRequest) (*domain.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID, adminID string, resolution domain.DisputeStatus, adminNotes string) (*domain.Dispute, error)
	ListDisputes(ctx context.Context, status domain.DisputeStatus, page, pageSize int) ([]domain.Dispute, int, error)
}

type NotificationService interface {
	// DeliverPending sends one batch of queued notifications and returns how
	// many were delivered.
	DeliverPending(ctx context.Context) (int, error)
}

type ContributionRequest struct {
	GroupID     string
	UserID      string
	CycleNumber int
	Amount      int64
	Rail        domain.Rail
	RailDetails domain.RailDetails
	// ChargeID is the caller's idempotency key. One is generated when empty.
	ChargeID string
}

type RetryRequest struct {
	SettlementID string
	ActorID      string
	IsAdmin      bool
	// AccountID optionally redirects the retry to another saved account of
	// the settlement owner.
	AccountID string
	// RailDetails optionally corrects the destination, e.g. a mistyped phone.
	RailDetails *domain.RailDetails
}

type FileDisputeRequest struct {
	TransactionID string
	UserID        string
	Type          domain.DisputeType
	Reason        string
	// Amount defaults to the amount moved on the rail.
	Amount   int64
	Evidence []string
}

// Services bundles every service the API and the jobs depend on.
type Services struct {
	Settlements   SettlementService
	Reserve       ReserveService
	Payouts       PayoutService
	Retries       RetryService
	Disputes      DisputeService
	Notifications NotificationService
}
