package service

import (
	"context"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/metrics"
	"chipereganyu-settlement/internal/repository"
)

type reserveService struct {
	reserveRepo repository.ReserveRepository
}

func NewReserveService(reserveRepo repository.ReserveRepository) ReserveService {
	return &reserveService{reserveRepo: reserveRepo}
}

func (s *reserveService) Credit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	if m.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := s.reserveRepo.Credit(ctx, m)
	if err != nil {
		return nil, err
	}
	metrics.ReserveMovements.WithLabelValues(string(domain.ReserveEntryIn)).Add(float64(m.Amount))
	logger.Info("Reserve credited", "entryID", entry.ID, "amount", m.Amount, "reason", m.Reason)
	return entry, nil
}

func (s *reserveService) Debit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	if m.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := s.reserveRepo.Debit(ctx, m)
	if err != nil {
		return nil, err
	}
	metrics.ReserveMovements.WithLabelValues(string(domain.ReserveEntryOut)).Add(float64(m.Amount))
	logger.Info("Reserve debited", "entryID", entry.ID, "amount", m.Amount, "reason", m.Reason)
	return entry, nil
}

func (s *reserveService) CurrentBalance(ctx context.Context) (int64, error) {
	return s.reserveRepo.Balance(ctx)
}

func (s *reserveService) ListEntries(ctx context.Context, page, pageSize int) ([]domain.ReserveLedgerEntry, int, error) {
	limit, offset := paginate(page, pageSize)
	return s.reserveRepo.ListEntries(ctx, limit, offset)
}

// Audit compares the cached wallet balance with the ledger sum.
func (s *reserveService) Audit(ctx context.Context) (*domain.ReserveAudit, error) {
	ledger, err := s.reserveRepo.Balance(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := s.reserveRepo.CachedBalance(ctx)
	if err != nil {
		return nil, err
	}

	audit := &domain.ReserveAudit{
		LedgerBalance: ledger,
		CachedBalance: cached,
		Consistent:    ledger == cached,
		CheckedAt:     time.Now().UTC(),
	}
	metrics.ReserveDivergence.Set(float64(cached - ledger))
	if !audit.Consistent {
		logger.Error("Reserve cache diverged from ledger", "ledgerBalance", ledger, "cachedBalance", cached)
	}
	return audit, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func paginate(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
