package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

type reserveRepository struct {
	db *sql.DB
}

func NewReserveRepository(db *sql.DB) repository.ReserveRepository {
	return &reserveRepository{db: db}
}

// Credit goes through add_to_reserve_wallet, the only sanctioned credit path.
func (r *reserveRepository) Credit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	logger.EnterMethod("reserveRepository.Credit", "amount", m.Amount, "reason", m.Reason)
	if m.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	logger.DatabaseCall("SELECT", "add_to_reserve_wallet", "amount", m.Amount)
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT add_to_reserve_wallet($1, $2, $3, $4, $5)`,
		m.Amount, m.GroupID, m.UserID, m.Reason, m.SettlementID).Scan(&id)
	logger.DatabaseResult("SELECT", 1, err, "entryID", id)
	if err != nil {
		logger.ExitMethodWithError("reserveRepository.Credit", err, "amount", m.Amount)
		return nil, fmt.Errorf("credit reserve: %w", err)
	}

	logger.ExitMethod("reserveRepository.Credit", "entryID", id)
	return entryFromMovement(id, domain.ReserveEntryIn, m), nil
}

// Debit locks the wallet row, checks the balance and appends the entry in
// one transaction so concurrent debits cannot both pass a stale check.
func (r *reserveRepository) Debit(ctx context.Context, m domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	logger.EnterMethod("reserveRepository.Debit", "amount", m.Amount, "reason", m.Reason)
	if m.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		logger.ExitMethodWithError("reserveRepository.Debit", err, "reason", "failed to begin transaction")
		return nil, fmt.Errorf("begin reserve debit: %w", err)
	}
	defer tx.Rollback()

	var balance int64
	logger.DatabaseCall("SELECT FOR UPDATE", "reserve_wallet")
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM reserve_wallet WHERE id = 1 FOR UPDATE`).Scan(&balance); err != nil {
		logger.ExitMethodWithError("reserveRepository.Debit", err, "reason", "failed to lock reserve wallet")
		return nil, fmt.Errorf("lock reserve wallet: %w", err)
	}
	if balance < m.Amount {
		err := domain.NewError(domain.KindInsufficientReserve, "reserve balance %d cannot cover %d", balance, m.Amount)
		logger.ExitMethodWithError("reserveRepository.Debit", err, "balance", balance, "amount", m.Amount)
		return nil, err
	}

	var id string
	var createdAt time.Time
	query := `INSERT INTO reserve_transactions (type, amount, group_id, user_id, settlement_id, reason)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	logger.DatabaseCall("INSERT", "reserve_transactions", "amount", m.Amount)
	err = tx.QueryRowContext(ctx, query, domain.ReserveEntryOut, m.Amount, m.GroupID, m.UserID, m.SettlementID, m.Reason).Scan(&id, &createdAt)
	logger.DatabaseResult("INSERT", 1, err, "entryID", id)
	if err != nil {
		logger.ExitMethodWithError("reserveRepository.Debit", err, "amount", m.Amount)
		return nil, fmt.Errorf("append reserve entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE reserve_wallet SET balance = balance - $1, updated_at = NOW() WHERE id = 1`, m.Amount); err != nil {
		logger.ExitMethodWithError("reserveRepository.Debit", err, "reason", "failed to update cached balance")
		return nil, fmt.Errorf("update reserve wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		logger.ExitMethodWithError("reserveRepository.Debit", err, "reason", "failed to commit")
		return nil, fmt.Errorf("commit reserve debit: %w", err)
	}

	entry := entryFromMovement(id, domain.ReserveEntryOut, m)
	entry.CreatedAt = createdAt
	logger.ExitMethod("reserveRepository.Debit", "entryID", id, "balanceAfter", balance-m.Amount)
	return entry, nil
}

// Balance is the ledger sum, the source of truth.
func (r *reserveRepository) Balance(ctx context.Context) (int64, error) {
	var balance int64
	query := `SELECT COALESCE(SUM(CASE WHEN type = 'reserve_in' THEN amount ELSE -amount END), 0) FROM reserve_transactions`
	err := r.db.QueryRowContext(ctx, query).Scan(&balance)
	return balance, err
}

func (r *reserveRepository) CachedBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM reserve_wallet WHERE id = 1`).Scan(&balance)
	return balance, err
}

func (r *reserveRepository) ListEntries(ctx context.Context, limit, offset int) ([]domain.ReserveLedgerEntry, int, error) {
	query := `SELECT id, type, amount, group_id, user_id, settlement_id, reason, created_at
	          FROM reserve_transactions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.ReserveLedgerEntry
	for rows.Next() {
		var e domain.ReserveLedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Amount, &e.GroupID, &e.UserID, &e.SettlementID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM reserve_transactions`).Scan(&count); err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

func entryFromMovement(id string, typ domain.ReserveEntryType, m domain.ReserveMovement) *domain.ReserveLedgerEntry {
	return &domain.ReserveLedgerEntry{
		ID:           id,
		Type:         typ,
		Amount:       m.Amount,
		GroupID:      m.GroupID,
		UserID:       m.UserID,
		SettlementID: m.SettlementID,
		Reason:       m.Reason,
		CreatedAt:    time.Now().UTC(),
	}
}
