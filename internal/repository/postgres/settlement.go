package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

const settlementColumns = `id, intent_id, direction, group_id, user_id, gross_amount, rail, rail_details,
	idempotency_key, shortfall_cover, retry_of, payout_id, contribution_id, dispute_id, requested_by,
	reserve_fee, platform_fee, net_amount, status, external_reference, failure_reason,
	dispatch_confirmed, reserve_entry_id, reconciliation_required, payment_account,
	created_at, processing_at, completed_at, failed_at, processed_at, updated_at`

type settlementRepository struct {
	db *sql.DB
}

func NewSettlementRepository(db *sql.DB) repository.SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) Claim(ctx context.Context, s *domain.Settlement) (bool, error) {
	logger.EnterMethod("settlementRepository.Claim", "settlementID", s.ID, "idempotencyKey", s.Intent.IdempotencyKey)

	details, err := json.Marshal(s.Intent.RailDetails)
	if err != nil {
		logger.ExitMethodWithError("settlementRepository.Claim", err, "reason", "failed to marshal rail details")
		return false, err
	}

	query := `INSERT INTO settlements (id, intent_id, direction, group_id, user_id, gross_amount, rail, rail_details,
	          idempotency_key, shortfall_cover, retry_of, payout_id, contribution_id, dispute_id, requested_by,
	          reserve_fee, platform_fee, net_amount, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
	          ON CONFLICT (idempotency_key) DO NOTHING
	          RETURNING id`
	logger.DatabaseCall("INSERT", "settlements", "idempotencyKey", s.Intent.IdempotencyKey)

	var id string
	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.Intent.ID, s.Intent.Direction, s.Intent.GroupID, s.Intent.UserID, s.Intent.GrossAmount,
		s.Intent.Rail, details, s.Intent.IdempotencyKey, s.Intent.ShortfallCover, s.Intent.RetryOf,
		s.Intent.PayoutID, s.Intent.ContributionID, s.Intent.DisputeID, s.Intent.RequestedBy,
		s.Fees.ReserveFee, s.Fees.PlatformFee, s.Fees.NetAmount, s.Status, s.CreatedAt,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("INSERT", 0, nil, "idempotencyKey", s.Intent.IdempotencyKey)
		logger.ExitMethod("settlementRepository.Claim", "created", false)
		return false, nil
	}
	if err != nil {
		logger.DatabaseResult("INSERT", 0, err)
		logger.ExitMethodWithError("settlementRepository.Claim", err, "settlementID", s.ID)
		return false, fmt.Errorf("claim settlement: %w", err)
	}

	logger.DatabaseResult("INSERT", 1, nil, "settlementID", id)
	logger.ExitMethod("settlementRepository.Claim", "created", true)
	return true, nil
}

func (r *settlementRepository) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *settlementRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE idempotency_key = $1`
	return r.getOne(ctx, query, key)
}

func (r *settlementRepository) GetByReference(ctx context.Context, ref string) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements
	          WHERE external_reference = $1 OR idempotency_key = $1
	          ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, ref)
}

func (r *settlementRepository) getOne(ctx context.Context, query string, arg any) (*domain.Settlement, error) {
	s, err := scanSettlement(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "settlement %v not found", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	return s, nil
}

func (r *settlementRepository) Transition(ctx context.Context, s *domain.Settlement, from domain.SettlementStatus) error {
	logger.EnterMethod("settlementRepository.Transition", "settlementID", s.ID, "from", from, "to", s.Status)

	var account any
	if s.PaymentAccount != nil {
		b, err := json.Marshal(s.PaymentAccount)
		if err != nil {
			logger.ExitMethodWithError("settlementRepository.Transition", err, "reason", "failed to marshal payment account")
			return err
		}
		account = b
	}

	s.UpdatedAt = time.Now().UTC()
	query := `UPDATE settlements SET status = $3, external_reference = $4, failure_reason = $5,
	          dispatch_confirmed = $6, reserve_entry_id = $7, reconciliation_required = $8, payment_account = $9,
	          processing_at = $10, completed_at = $11, failed_at = $12, processed_at = $13, updated_at = $14
	          WHERE id = $1 AND status = $2`
	logger.DatabaseCall("UPDATE", "settlements", "settlementID", s.ID)

	result, err := r.db.ExecContext(ctx, query, s.ID, from, s.Status, s.ExternalReference, s.FailureReason,
		s.DispatchConfirmed, s.ReserveEntryID, s.ReconciliationRequired, account,
		s.ProcessingAt, s.CompletedAt, s.FailedAt, s.ProcessedAt, s.UpdatedAt)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		logger.ExitMethodWithError("settlementRepository.Transition", err, "settlementID", s.ID)
		return fmt.Errorf("update settlement: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	logger.DatabaseResult("UPDATE", rows, nil, "settlementID", s.ID)
	if rows == 0 {
		err := domain.NewError(domain.KindInvalidTransition, "settlement %s is no longer %s", s.ID, from)
		logger.ExitMethodWithError("settlementRepository.Transition", err, "settlementID", s.ID)
		return err
	}

	logger.ExitMethod("settlementRepository.Transition", "settlementID", s.ID, "status", s.Status)
	return nil
}

func (r *settlementRepository) ListByStatus(ctx context.Context, status domain.SettlementStatus, olderThan time.Time, limit int) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements
	          WHERE status = $1 AND COALESCE(processing_at, created_at) < $2
	          ORDER BY created_at ASC LIMIT $3`
	return r.list(ctx, query, status, olderThan, limit)
}

func (r *settlementRepository) ListRetriesOf(ctx context.Context, sourceID string) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE retry_of = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, sourceID)
}

func (r *settlementRepository) list(ctx context.Context, query string, args ...any) ([]domain.Settlement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *settlementRepository) CountRetriesByActor(ctx context.Context, actorID string, since time.Time) (int, error) {
	var count int
	query := `SELECT count(*) FROM settlements WHERE retry_of IS NOT NULL AND requested_by = $1 AND created_at >= $2`
	err := r.db.QueryRowContext(ctx, query, actorID, since).Scan(&count)
	return count, err
}

func (r *settlementRepository) ListByDispute(ctx context.Context, disputeID string) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE dispute_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, disputeID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*domain.Settlement, error) {
	var s domain.Settlement
	var details, account []byte
	err := row.Scan(
		&s.ID, &s.Intent.ID, &s.Intent.Direction, &s.Intent.GroupID, &s.Intent.UserID, &s.Intent.GrossAmount,
		&s.Intent.Rail, &details, &s.Intent.IdempotencyKey, &s.Intent.ShortfallCover, &s.Intent.RetryOf,
		&s.Intent.PayoutID, &s.Intent.ContributionID, &s.Intent.DisputeID, &s.Intent.RequestedBy,
		&s.Fees.ReserveFee, &s.Fees.PlatformFee, &s.Fees.NetAmount, &s.Status, &s.ExternalReference,
		&s.FailureReason, &s.DispatchConfirmed, &s.ReserveEntryID, &s.ReconciliationRequired, &account,
		&s.CreatedAt, &s.ProcessingAt, &s.CompletedAt, &s.FailedAt, &s.ProcessedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(details) > 0 {
		if err := json.Unmarshal(details, &s.Intent.RailDetails); err != nil {
			return nil, fmt.Errorf("decode rail details: %w", err)
		}
	}
	if len(account) > 0 {
		s.PaymentAccount = &domain.PaymentAccountDetails{}
		if err := json.Unmarshal(account, s.PaymentAccount); err != nil {
			return nil, fmt.Errorf("decode payment account: %w", err)
		}
	}

	s.Fees.GrossAmount = s.Intent.GrossAmount
	s.Fees.TotalFees = s.Fees.ReserveFee + s.Fees.PlatformFee
	return &s, nil
}
