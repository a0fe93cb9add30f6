package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

type payoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func (r *payoutRepository) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	var p domain.Payout
	query := `SELECT id, group_id, recipient_id, cycle_number, amount, due_date, status, settlement_id, attempts, created_at, updated_at
	          FROM payouts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.GroupID, &p.RecipientID, &p.CycleNumber, &p.Amount,
		&p.DueDate, &p.Status, &p.SettlementID, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "payout %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return &p, nil
}

func (r *payoutRepository) Update(ctx context.Context, p *domain.Payout) error {
	logger.EnterMethod("payoutRepository.Update", "payoutID", p.ID, "status", p.Status)

	p.UpdatedAt = time.Now().UTC()
	query := `UPDATE payouts SET status = $2, settlement_id = $3, attempts = $4, updated_at = $5 WHERE id = $1`
	logger.DatabaseCall("UPDATE", "payouts", "payoutID", p.ID)
	result, err := r.db.ExecContext(ctx, query, p.ID, p.Status, p.SettlementID, p.Attempts, p.UpdatedAt)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		logger.ExitMethodWithError("payoutRepository.Update", err, "payoutID", p.ID)
		return fmt.Errorf("update payout: %w", err)
	}
	rows, _ := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, nil, "payoutID", p.ID)
	if rows == 0 {
		return domain.NewError(domain.KindNotFound, "payout %s not found", p.ID)
	}

	logger.ExitMethod("payoutRepository.Update", "payoutID", p.ID)
	return nil
}

func (r *payoutRepository) UpdateStatus(ctx context.Context, id string, status domain.PayoutStatus) error {
	query := `UPDATE payouts SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status)
	return err
}

type contributionRepository struct {
	db *sql.DB
}

func NewContributionRepository(db *sql.DB) repository.ContributionRepository {
	return &contributionRepository{db: db}
}

func (r *contributionRepository) Create(ctx context.Context, c *domain.Contribution) error {
	logger.EnterMethod("contributionRepository.Create", "contributionID", c.ID, "groupID", c.GroupID)

	query := `INSERT INTO contributions (id, group_id, user_id, cycle_number, amount, status, settlement_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	          ON CONFLICT (id) DO NOTHING`
	logger.DatabaseCall("INSERT", "contributions", "contributionID", c.ID)
	_, err := r.db.ExecContext(ctx, query, c.ID, c.GroupID, c.UserID, c.CycleNumber, c.Amount, c.Status, c.SettlementID, c.CreatedAt)
	logger.DatabaseResult("INSERT", 1, err, "contributionID", c.ID)
	if err != nil {
		logger.ExitMethodWithError("contributionRepository.Create", err, "contributionID", c.ID)
		return fmt.Errorf("create contribution: %w", err)
	}

	logger.ExitMethod("contributionRepository.Create", "contributionID", c.ID)
	return nil
}

func (r *contributionRepository) GetByID(ctx context.Context, id string) (*domain.Contribution, error) {
	var c domain.Contribution
	query := `SELECT id, group_id, user_id, cycle_number, amount, status, settlement_id, created_at, updated_at
	          FROM contributions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.GroupID, &c.UserID, &c.CycleNumber, &c.Amount,
		&c.Status, &c.SettlementID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "contribution %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return &c, nil
}

func (r *contributionRepository) UpdateStatus(ctx context.Context, id string, status domain.ContributionStatus, settlementID *string) error {
	query := `UPDATE contributions SET status = $2, settlement_id = COALESCE($3, settlement_id), updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status, settlementID)
	return err
}

func (r *contributionRepository) SumCompleted(ctx context.Context, groupID string, cycleNumber int) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE group_id = $1 AND cycle_number = $2 AND status = 'completed'`
	err := r.db.QueryRowContext(ctx, query, groupID, cycleNumber).Scan(&total)
	return total, err
}
