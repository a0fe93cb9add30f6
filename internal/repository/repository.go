package repository

import (
	"context"
	"time"

	"chipereganyu-settlement/internal/domain"
)

type SettlementRepository interface {
	// Claim inserts the settlement unless one already holds its idempotency
	// key. It reports whether this call created the row.
	Claim(ctx context.Context, s *domain.Settlement) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Settlement, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error)
	// GetByReference matches the gateway reference or the charge id.
	GetByReference(ctx context.Context, ref string) (*domain.Settlement, error)
	// Transition persists s only if the stored status is still from.
	Transition(ctx context.Context, s *domain.Settlement, from domain.SettlementStatus) error
	ListByStatus(ctx context.Context, status domain.SettlementStatus, olderThan time.Time, limit int) ([]domain.Settlement, error)
	ListRetriesOf(ctx context.Context, sourceID string) ([]domain.Settlement, error)
	CountRetriesByActor(ctx context.Context, actorID string, since time.Time) (int, error)
	// ListByDispute returns the refunds submitted for a dispute, oldest first.
	ListByDispute(ctx context.Context, disputeID string) ([]domain.Settlement, error)
}

type ReserveRepository interface {
	Credit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error)
	// Debit fails with domain.ErrInsufficientReserve instead of letting the
	// balance go negative.
	Debit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error)
	Balance(ctx context.Context) (int64, error)
	CachedBalance(ctx context.Context) (int64, error)
	ListEntries(ctx context.Context, limit, offset int) ([]domain.ReserveLedgerEntry, int, error)
}

type DisputeRepository interface {
	Create(ctx context.Context, d *domain.Dispute) error
	GetByID(ctx context.Context, id string) (*domain.Dispute, error)
	// Resolve stores the resolution if the dispute is still pending.
	Resolve(ctx context.Context, d *domain.Dispute) error
	List(ctx context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, int, error)
}

type PayoutRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Payout, error)
	Update(ctx context.Context, p *domain.Payout) error
	UpdateStatus(ctx context.Context, id string, status domain.PayoutStatus) error
}

type ContributionRepository interface {
	Create(ctx context.Context, c *domain.Contribution) error
	GetByID(ctx context.Context, id string) (*domain.Contribution, error)
	UpdateStatus(ctx context.Context, id string, status domain.ContributionStatus, settlementID *string) error
	SumCompleted(ctx context.Context, groupID string, cycleNumber int) (int64, error)
}

type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (*domain.PayoutAccount, error)
	GetPrimaryAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error)
}

type NotificationRepository interface {
	Enqueue(ctx context.Context, e *domain.NotificationEvent) error
	// ClaimPending leases up to limit undelivered events to the caller.
	ClaimPending(ctx context.Context, limit, maxAttempts int) ([]domain.NotificationEvent, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, final bool) error
}

type ContactRepository interface {
	GetContact(ctx context.Context, userID string) (*domain.Contact, error)
}

type AuditRepository interface {
	Record(ctx context.Context, e *domain.AuditEntry) error
}
