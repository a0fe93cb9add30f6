package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

const uniqueViolation = "23505"

type disputeRepository struct {
	db *sql.DB
}

func NewDisputeRepository(db *sql.DB) repository.DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(ctx context.Context, d *domain.Dispute) error {
	logger.EnterMethod("disputeRepository.Create", "disputeID", d.ID, "transactionID", d.TransactionID)

	query := `INSERT INTO payment_disputes (id, transaction_id, user_id, type, reason, amount, evidence, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`
	logger.DatabaseCall("INSERT", "payment_disputes", "transactionID", d.TransactionID)

	_, err := r.db.ExecContext(ctx, query, d.ID, d.TransactionID, d.UserID, d.Type, d.Reason, d.Amount,
		pq.Array(d.Evidence), d.Status, d.CreatedAt)
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			logger.ExitMethodWithError("disputeRepository.Create", err, "reason", "pending dispute exists")
			return domain.WrapError(domain.KindDuplicateDispute, err, "a pending dispute already exists for transaction %s", d.TransactionID)
		}
		logger.ExitMethodWithError("disputeRepository.Create", err, "transactionID", d.TransactionID)
		return fmt.Errorf("create dispute: %w", err)
	}

	logger.DatabaseResult("INSERT", 1, nil, "disputeID", d.ID)
	logger.ExitMethod("disputeRepository.Create", "disputeID", d.ID)
	return nil
}

const disputeColumns = `id, transaction_id, user_id, type, reason, amount, evidence, status, admin_notes,
	refund_settlement_id, resolved_at, resolved_by, created_at, updated_at`

func (r *disputeRepository) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM payment_disputes WHERE id = $1`
	d, err := scanDispute(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "dispute %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get dispute: %w", err)
	}
	return d, nil
}

func (r *disputeRepository) Resolve(ctx context.Context, d *domain.Dispute) error {
	logger.EnterMethod("disputeRepository.Resolve", "disputeID", d.ID, "status", d.Status)

	d.UpdatedAt = time.Now().UTC()
	query := `UPDATE payment_disputes SET status = $2, admin_notes = $3, refund_settlement_id = $4,
	          resolved_at = $5, resolved_by = $6, updated_at = $7
	          WHERE id = $1 AND status = 'pending'`
	logger.DatabaseCall("UPDATE", "payment_disputes", "disputeID", d.ID)

	result, err := r.db.ExecContext(ctx, query, d.ID, d.Status, d.AdminNotes, d.RefundSettlementID, d.ResolvedAt, d.ResolvedBy, d.UpdatedAt)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		logger.ExitMethodWithError("disputeRepository.Resolve", err, "disputeID", d.ID)
		return fmt.Errorf("resolve dispute: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "disputeID", d.ID)
	if rows == 0 {
		logger.ExitMethodWithError("disputeRepository.Resolve", domain.ErrAlreadyResolved, "disputeID", d.ID)
		return domain.ErrAlreadyResolved
	}

	logger.ExitMethod("disputeRepository.Resolve", "disputeID", d.ID)
	return nil
}

func (r *disputeRepository) List(ctx context.Context, status domain.DisputeStatus, limit, offset int) ([]domain.Dispute, int, error) {
	query := `SELECT ` + disputeColumns + ` FROM payment_disputes
	          WHERE ($1::text = '' OR status = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var disputes []domain.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, 0, err
		}
		disputes = append(disputes, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var count int
	countQuery := `SELECT count(*) FROM payment_disputes WHERE ($1::text = '' OR status = $1)`
	if err := r.db.QueryRowContext(ctx, countQuery, status).Scan(&count); err != nil {
		return nil, 0, err
	}
	return disputes, count, nil
}

func scanDispute(row rowScanner) (*domain.Dispute, error) {
	var d domain.Dispute
	var evidence pq.StringArray
	err := row.Scan(&d.ID, &d.TransactionID, &d.UserID, &d.Type, &d.Reason, &d.Amount, &evidence, &d.Status,
		&d.AdminNotes, &d.RefundSettlementID, &d.ResolvedAt, &d.ResolvedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Evidence = []string(evidence)
	return &d, nil
}
