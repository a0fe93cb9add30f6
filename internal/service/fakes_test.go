package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
)

// memStore is an in-memory persistence layer with the same atomicity as the
// Postgres repositories: unique idempotency keys, conditional transitions, a
// non-negative reserve and one pending dispute per transaction.
type memStore struct {
	mu sync.Mutex

	settlements map[string]domain.Settlement
	byKey       map[string]string

	reserveEntries []domain.ReserveLedgerEntry
	reserveBalance int64
	debitErr       error
	creditErr      error

	disputes      map[string]domain.Dispute
	payouts       map[string]domain.Payout
	contributions map[string]domain.Contribution
	accounts      map[string]domain.PayoutAccount
	notifications []domain.NotificationEvent
	contacts      map[string]domain.Contact
	audit         []domain.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		settlements:   map[string]domain.Settlement{},
		byKey:         map[string]string{},
		disputes:      map[string]domain.Dispute{},
		payouts:       map[string]domain.Payout{},
		contributions: map[string]domain.Contribution{},
		accounts:      map[string]domain.PayoutAccount{},
		contacts:      map[string]domain.Contact{},
	}
}

type memSettlements struct{ *memStore }

func (m memSettlements) Claim(ctx context.Context, s *domain.Settlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[s.Intent.IdempotencyKey]; ok {
		return false, nil
	}
	m.byKey[s.Intent.IdempotencyKey] = s.ID
	m.settlements[s.ID] = *s
	return true, nil
}

func (m memSettlements) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "settlement %s not found", id)
	}
	return &s, nil
}

func (m memSettlements) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error) {
	m.mu.Lock()
	id, ok := m.byKey[key]
	m.mu.Unlock()
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "settlement %s not found", key)
	}
	return m.GetByID(ctx, id)
}

func (m memSettlements) GetByReference(ctx context.Context, ref string) (*domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.settlements {
		if s.ExternalReference == ref || s.Intent.IdempotencyKey == ref {
			return &s, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "settlement %s not found", ref)
}

func (m memSettlements) Transition(ctx context.Context, s *domain.Settlement, from domain.SettlementStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.settlements[s.ID]
	if !ok || stored.Status != from {
		return domain.NewError(domain.KindInvalidTransition, "settlement %s is no longer %s", s.ID, from)
	}
	s.UpdatedAt = time.Now().UTC()
	m.settlements[s.ID] = *s
	return nil
}

func (m memSettlements) ListByStatus(ctx context.Context, status domain.SettlementStatus, olderThan time.Time, limit int) ([]domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Settlement
	for _, s := range m.settlements {
		at := s.CreatedAt
		if s.ProcessingAt != nil {
			at = *s.ProcessingAt
		}
		if s.Status == status && at.Before(olderThan) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memSettlements) ListRetriesOf(ctx context.Context, sourceID string) ([]domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Settlement
	for _, s := range m.settlements {
		if s.Intent.RetryOf != nil && *s.Intent.RetryOf == sourceID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memSettlements) CountRetriesByActor(ctx context.Context, actorID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.settlements {
		if s.Intent.RetryOf != nil && s.Intent.RequestedBy == actorID && !s.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m memSettlements) ListByDispute(ctx context.Context, disputeID string) ([]domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Settlement
	for _, s := range m.settlements {
		if s.Intent.DisputeID != nil && *s.Intent.DisputeID == disputeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memReserve struct{ *memStore }

func (m memReserve) Credit(ctx context.Context, mv domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creditErr != nil {
		return nil, m.creditErr
	}
	return m.add(domain.ReserveEntryIn, mv), nil
}

func (m memReserve) Debit(ctx context.Context, mv domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debitErr != nil {
		return nil, m.debitErr
	}
	if m.reserveBalance < mv.Amount {
		return nil, domain.ErrInsufficientReserve
	}
	return m.add(domain.ReserveEntryOut, mv), nil
}

func (m memReserve) add(typ domain.ReserveEntryType, mv domain.ReserveMovement) *domain.ReserveLedgerEntry {
	entry := domain.ReserveLedgerEntry{
		ID:           uuid.NewString(),
		Type:         typ,
		Amount:       mv.Amount,
		GroupID:      mv.GroupID,
		UserID:       mv.UserID,
		SettlementID: mv.SettlementID,
		Reason:       mv.Reason,
		CreatedAt:    time.Now().UTC(),
	}
	if typ == domain.ReserveEntryIn {
		m.reserveBalance += mv.Amount
	} else {
		m.reserveBalance -= mv.Amount
	}
	m.reserveEntries = append(m.reserveEntries, entry)
	return &entry
}

func (m memReserve) Balance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.reserveEntries {
		if e.Type == domain.ReserveEntryIn {
			sum += e.Amount
		} else {
			sum -= e.Amount
		}
	}
	return sum, nil
}

func (m memReserve) CachedBalance(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveBalance, nil
}

func (m memReserve) ListEntries(ctx context.Context, limit, offset int) ([]domain.ReserveLedgerEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.reserveEntries)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return append([]domain.ReserveLedgerEntry(nil), m.reserveEntries[offset:end]...), total, nil
}

type memDisputes struct{ *memStore }

func (m memDisputes) Create(ctx context.Context, d *domain.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.disputes {
		if existing.TransactionID == d.TransactionID && existing.Status == domain.DisputeStatusPending {
			return domain.ErrDuplicateDispute
		}
	}
	m.disputes[d.ID] = *d
	return nil
}

func (m memDisputes) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.disputes[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "dispute %s not found", id)
	}
	return &d, nil
}

func (m memDisputes) Resolve(ctx context.Context, d *domain.Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.disputes[d.ID]
	if !ok || stored.Status != domain.DisputeStatusPending {
		return domain.ErrAlreadyResolved
	}
	m.disputes[d.ID] = *d
	return nil
}

func (m memDisputes) List(ctx context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Dispute
	for _, d := range m.disputes {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

type memPayouts struct{ *memStore }

func (m memPayouts) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "payout %s not found", id)
	}
	return &p, nil
}

func (m memPayouts) Update(ctx context.Context, p *domain.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.ID] = *p
	return nil
}

func (m memPayouts) UpdateStatus(ctx context.Context, id string, status domain.PayoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payouts[id]; ok {
		p.Status = status
		m.payouts[id] = p
	}
	return nil
}

type memContributions struct{ *memStore }

func (m memContributions) Create(ctx context.Context, c *domain.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contributions[c.ID]; !ok {
		m.contributions[c.ID] = *c
	}
	return nil
}

func (m memContributions) GetByID(ctx context.Context, id string) (*domain.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contributions[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "contribution %s not found", id)
	}
	return &c, nil
}

func (m memContributions) UpdateStatus(ctx context.Context, id string, status domain.ContributionStatus, settlementID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contributions[id]; ok {
		c.Status = status
		if settlementID != nil {
			c.SettlementID = settlementID
		}
		m.contributions[id] = c
	}
	return nil
}

func (m memContributions) SumCompleted(ctx context.Context, groupID string, cycleNumber int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, c := range m.contributions {
		if c.GroupID == groupID && c.CycleNumber == cycleNumber && c.Status == domain.ContributionStatusCompleted {
			sum += c.Amount
		}
	}
	return sum, nil
}

type memAccounts struct{ *memStore }

func (m memAccounts) GetAccount(ctx context.Context, accountID string) (*domain.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "account %s not found", accountID)
	}
	return &a, nil
}

func (m memAccounts) GetPrimaryAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.UserID == userID && a.IsPrimary {
			return &a, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "no primary account for %s", userID)
}

type memNotifications struct{ *memStore }

func (m memNotifications) Enqueue(ctx context.Context, e *domain.NotificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *e)
	return nil
}

func (m memNotifications) ClaimPending(ctx context.Context, limit, maxAttempts int) ([]domain.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NotificationEvent
	for i := range m.notifications {
		e := &m.notifications[i]
		if e.Status == domain.NotificationStatusPending && e.Attempts < maxAttempts && len(out) < limit {
			e.Attempts++
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m memNotifications) MarkDelivered(ctx context.Context, id string) error {
	return m.setStatus(id, domain.NotificationStatusDelivered, "")
}

func (m memNotifications) MarkFailed(ctx context.Context, id string, reason string, final bool) error {
	status := domain.NotificationStatusPending
	if final {
		status = domain.NotificationStatusFailed
	}
	return m.setStatus(id, status, reason)
}

func (m memNotifications) setStatus(id string, status domain.NotificationStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Status = status
			m.notifications[i].LastError = reason
		}
	}
	return nil
}

type memContacts struct{ *memStore }

func (m memContacts) GetContact(ctx context.Context, userID string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "contact %s not found", userID)
	}
	return &c, nil
}

type memAudit struct{ *memStore }

func (m memAudit) Record(ctx context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *e)
	return nil
}

func (m *memStore) settlement(id string) domain.Settlement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settlements[id]
}

func (m *memStore) balance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveBalance
}

func (m *memStore) entries() []domain.ReserveLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReserveLedgerEntry(nil), m.reserveEntries...)
}

func (m *memStore) settlementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.settlements)
}

func (m *memStore) notificationTypes(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

func (m *memStore) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.audit {
		out = append(out, a.Action)
	}
	return out
}
