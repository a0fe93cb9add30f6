package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"chipereganyu-settlement/internal/logger"
)

// schema sets up the settlement tables. It is idempotent and runs on startup
// when database.migrate is enabled.
// profiles, payouts, contributions and the account tables are owned by the
// group product; they are created here only so a fresh database works.
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
    id UUID PRIMARY KEY,
    full_name TEXT NOT NULL DEFAULT '',
    email TEXT,
    fcm_token TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settlements (
    id UUID PRIMARY KEY,
    intent_id UUID NOT NULL,
    direction TEXT NOT NULL CHECK (direction IN ('collection', 'payout', 'reversal')),
    group_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,
    gross_amount BIGINT NOT NULL CHECK (gross_amount > 0),
    rail TEXT NOT NULL CHECK (rail IN ('mobile_money', 'bank_transfer')),
    rail_details JSONB NOT NULL DEFAULT '{}',
    idempotency_key TEXT NOT NULL,
    shortfall_cover BIGINT NOT NULL DEFAULT 0,
    retry_of UUID REFERENCES settlements(id),
    payout_id TEXT,
    contribution_id TEXT,
    dispute_id TEXT,
    requested_by TEXT NOT NULL DEFAULT '',
    reserve_fee BIGINT NOT NULL DEFAULT 0,
    platform_fee BIGINT NOT NULL DEFAULT 0,
    net_amount BIGINT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    external_reference TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    dispatch_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    reserve_entry_id TEXT,
    reconciliation_required BOOLEAN NOT NULL DEFAULT FALSE,
    payment_account JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processing_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    failed_at TIMESTAMPTZ,
    processed_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (reserve_fee + platform_fee + net_amount = gross_amount)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_settlements_idempotency_key ON settlements(idempotency_key);
CREATE INDEX IF NOT EXISTS idx_settlements_external_reference ON settlements(external_reference) WHERE external_reference <> '';
CREATE INDEX IF NOT EXISTS idx_settlements_status ON settlements(status, created_at);
CREATE INDEX IF NOT EXISTS idx_settlements_retry_of ON settlements(retry_of) WHERE retry_of IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_settlements_dispute_id ON settlements(dispute_id) WHERE dispute_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS reserve_wallet (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

INSERT INTO reserve_wallet (id, balance) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS reserve_transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    type TEXT NOT NULL CHECK (type IN ('reserve_in', 'reserve_out')),
    amount BIGINT NOT NULL CHECK (amount > 0),
    group_id TEXT,
    user_id TEXT,
    settlement_id UUID,
    reason TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_reserve_transactions_created_at ON reserve_transactions(created_at DESC);

CREATE OR REPLACE FUNCTION add_to_reserve_wallet(
    p_amount BIGINT,
    p_group_id TEXT,
    p_user_id TEXT,
    p_reason TEXT,
    p_settlement_id UUID DEFAULT NULL
) RETURNS UUID AS $$
DECLARE
    v_entry_id UUID;
BEGIN
    IF p_amount <= 0 THEN
        RAISE EXCEPTION 'reserve credit must be positive, got %', p_amount;
    END IF;

    PERFORM 1 FROM reserve_wallet WHERE id = 1 FOR UPDATE;

    INSERT INTO reserve_transactions (type, amount, group_id, user_id, settlement_id, reason)
    VALUES ('reserve_in', p_amount, p_group_id, p_user_id, p_settlement_id, p_reason)
    RETURNING id INTO v_entry_id;

    UPDATE reserve_wallet SET balance = balance + p_amount, updated_at = NOW() WHERE id = 1;

    RETURN v_entry_id;
END;
$$ LANGUAGE plpgsql;

CREATE TABLE IF NOT EXISTS payment_disputes (
    id UUID PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    reason TEXT NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    evidence TEXT[] NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    admin_notes TEXT NOT NULL DEFAULT '',
    refund_settlement_id UUID,
    resolved_at TIMESTAMPTZ,
    resolved_by TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_disputes_one_pending
    ON payment_disputes(transaction_id) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS payouts (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    cycle_number INTEGER NOT NULL,
    amount BIGINT NOT NULL CHECK (amount > 0),
    due_date TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL DEFAULT 'scheduled',
    settlement_id UUID,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS contributions (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    cycle_number INTEGER NOT NULL DEFAULT 0,
    amount BIGINT NOT NULL CHECK (amount > 0),
    status TEXT NOT NULL DEFAULT 'pending',
    settlement_id UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_contributions_group_cycle ON contributions(group_id, cycle_number, status);

CREATE TABLE IF NOT EXISTS mobile_money_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    phone_number TEXT NOT NULL,
    account_name TEXT NOT NULL DEFAULT '',
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bank_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    bank_name TEXT NOT NULL,
    account_number TEXT NOT NULL,
    account_name TEXT NOT NULL,
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notification_events (
    id UUID PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    attributes JSONB NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'delivered', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    locked_until TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_notification_events_pending ON notification_events(created_at) WHERE status = 'pending';

CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    actor_id TEXT,
    details JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity_type, entity_id);
`

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	logger.Info("Applying database schema")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return tx.Commit()
}
