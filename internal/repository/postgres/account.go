package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/repository"
)

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// accountsView unifies mobile money wallets and bank accounts.
const accountsView = `
	SELECT id, user_id, 'mobile_money' AS rail, provider, phone_number, '' AS bank_name, '' AS account_number, account_name, is_primary, created_at
	FROM mobile_money_accounts
	UNION ALL
	SELECT id, user_id, 'bank_transfer' AS rail, '' AS provider, '' AS phone_number, bank_name, account_number, account_name, is_primary, created_at
	FROM bank_accounts`

func (r *accountRepository) GetAccount(ctx context.Context, accountID string) (*domain.PayoutAccount, error) {
	query := `SELECT id, user_id, rail, provider, phone_number, bank_name, account_number, account_name, is_primary
	          FROM (` + accountsView + `) a WHERE id = $1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "account %s not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetPrimaryAccount(ctx context.Context, userID string) (*domain.PayoutAccount, error) {
	query := `SELECT id, user_id, rail, provider, phone_number, bank_name, account_number, account_name, is_primary
	          FROM (` + accountsView + `) a WHERE user_id = $1
	          ORDER BY is_primary DESC, created_at ASC LIMIT 1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "no payout account for user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get primary account: %w", err)
	}
	return a, nil
}

func scanAccount(row rowScanner) (*domain.PayoutAccount, error) {
	var a domain.PayoutAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Rail, &a.Details.Provider, &a.Details.Phone, &a.Details.BankName,
		&a.Details.AccountNumber, &a.Details.AccountName, &a.IsPrimary)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
