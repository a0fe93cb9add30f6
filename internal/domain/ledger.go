package domain

import "time"

// FeeBreakdown is always derived from a gross amount, never stored on its own.
type FeeBreakdown struct {
	GrossAmount int64 `json:"gross_amount"`
	ReserveFee  int64 `json:"reserve_fee"`
	PlatformFee int64 `json:"platform_fee"`
	TotalFees   int64 `json:"total_fees"`
	NetAmount   int64 `json:"net_amount"`
}

type ReserveEntryType string

const (
	ReserveEntryIn  ReserveEntryType = "reserve_in"
	ReserveEntryOut ReserveEntryType = "reserve_out"
)

// ReserveLedgerEntry is one append-only movement of the safety reserve.
type ReserveLedgerEntry struct {
	ID           string           `json:"id"`
	Type         ReserveEntryType `json:"type"`
	Amount       int64            `json:"amount"`
	GroupID      *string          `json:"group_id,omitempty"`
	UserID       *string          `json:"user_id,omitempty"`
	SettlementID *string          `json:"settlement_id,omitempty"`
	Reason       string           `json:"reason"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ReserveMovement is a request to credit or debit the reserve.
type ReserveMovement struct {
	Amount       int64
	GroupID      *string
	UserID       *string
	SettlementID *string
	Reason       string
}

// ReserveAudit compares the cached wallet balance with the ledger sum.
type ReserveAudit struct {
	LedgerBalance int64     `json:"ledger_balance"`
	CachedBalance int64     `json:"cached_balance"`
	Consistent    bool      `json:"consistent"`
	CheckedAt     time.Time `json:"checked_at"`
}
