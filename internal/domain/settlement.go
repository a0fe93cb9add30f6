package domain

import (
	"strings"
	"time"
)

type Direction string

const (
	DirectionCollection Direction = "collection"
	DirectionPayout     Direction = "payout"
	// DirectionReversal returns money to a member after an approved dispute.
	DirectionReversal Direction = "reversal"
)

type Rail string

const (
	RailMobileMoney  Rail = "mobile_money"
	RailBankTransfer Rail = "bank_transfer"
)

// RailDetails carries the raw, unresolved destination or source of funds.
// Mobile money uses Phone and Provider; bank transfers use BankName,
// AccountNumber and AccountName.
type RailDetails struct {
	Phone         string `json:"phone,omitempty"`
	Provider      string `json:"provider,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

// SettlementIntent is an immutable request to move money for one member.
type SettlementIntent struct {
	ID             string      `json:"id"`
	Direction      Direction   `json:"direction"`
	GroupID        string      `json:"group_id"`
	UserID         string      `json:"user_id"`
	GrossAmount    int64       `json:"gross_amount"`
	Rail           Rail        `json:"rail"`
	RailDetails    RailDetails `json:"rail_details"`
	IdempotencyKey string      `json:"idempotency_key"`

	// ShortfallCover is the part of a payout underwritten by the reserve.
	ShortfallCover int64 `json:"shortfall_cover,omitempty"`

	RetryOf        *string `json:"retry_of,omitempty"`
	PayoutID       *string `json:"payout_id,omitempty"`
	ContributionID *string `json:"contribution_id,omitempty"`
	DisputeID      *string `json:"dispute_id,omitempty"`
	RequestedBy    string  `json:"requested_by"`
}

// Validate checks the intent invariants that do not need the rail lookup tables.
func (i *SettlementIntent) Validate() error {
	if i.GrossAmount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(i.IdempotencyKey) == "" {
		return NewError(KindInvalidIntent, "idempotency key is required")
	}
	if i.UserID == "" {
		return NewError(KindInvalidIntent, "user id is required")
	}
	switch i.Direction {
	case DirectionCollection, DirectionPayout, DirectionReversal:
	default:
		return NewError(KindInvalidIntent, "unknown direction %q", i.Direction)
	}
	if i.ShortfallCover < 0 || i.ShortfallCover > i.GrossAmount {
		return NewError(KindInvalidIntent, "shortfall cover out of range")
	}
	if i.ShortfallCover > 0 && i.Direction != DirectionPayout {
		return NewError(KindInvalidIntent, "shortfall cover only applies to payouts")
	}

	d := i.RailDetails
	switch i.Rail {
	case RailMobileMoney:
		if strings.TrimSpace(d.Phone) == "" || strings.TrimSpace(d.Provider) == "" {
			return NewError(KindInvalidIntent, "mobile money requires phone and provider")
		}
	case RailBankTransfer:
		// Bank collections are paid into a generated virtual account, so the
		// payer supplies no account details.
		if i.Direction == DirectionCollection {
			return nil
		}
		if strings.TrimSpace(d.BankName) == "" || strings.TrimSpace(d.AccountNumber) == "" || strings.TrimSpace(d.AccountName) == "" {
			return NewError(KindInvalidIntent, "bank transfer requires bank, account number and account name")
		}
	default:
		return NewError(KindInvalidIntent, "unknown rail %q", i.Rail)
	}
	return nil
}

// ChargesFees reports whether the platform and reserve fees apply to the intent.
// Collections and reversals move the gross amount unchanged.
func (i *SettlementIntent) ChargesFees() bool {
	return i.Direction == DirectionPayout
}

type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"
	SettlementStatusProcessing SettlementStatus = "processing"
	SettlementStatusCompleted  SettlementStatus = "completed"
	SettlementStatusFailed     SettlementStatus = "failed"
)

func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementStatusCompleted || s == SettlementStatusFailed
}

// Settlement is the durable record of one attempt to move money across a rail.
type Settlement struct {
	ID     string           `json:"id"`
	Intent SettlementIntent `json:"intent"`
	Fees   FeeBreakdown     `json:"fees"`
	Status SettlementStatus `json:"status"`

	ExternalReference string `json:"external_reference,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`

	// DispatchConfirmed is false while the rail has not acknowledged the
	// request, e.g. after a gateway timeout.
	DispatchConfirmed      bool                   `json:"dispatch_confirmed"`
	ReserveEntryID         *string                `json:"reserve_entry_id,omitempty"`
	ReconciliationRequired bool                   `json:"reconciliation_required"`
	PaymentAccount         *PaymentAccountDetails `json:"payment_account,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AmountOnRail is what the rail actually moves: the net amount for payouts,
// the gross amount otherwise.
func (s *Settlement) AmountOnRail() int64 {
	if s.Intent.ChargesFees() {
		return s.Fees.NetAmount
	}
	return s.Intent.GrossAmount
}

// CanTransition encodes the settlement state machine.
func CanTransition(from, to SettlementStatus) bool {
	switch from {
	case SettlementStatusPending:
		return to == SettlementStatusProcessing || to == SettlementStatusFailed
	case SettlementStatusProcessing:
		return to == SettlementStatusCompleted || to == SettlementStatusFailed
	}
	return false
}

// ExternalStatus is the rail's view of a dispatched settlement.
type ExternalStatus string

const (
	ExternalStatusPending ExternalStatus = "pending"
	ExternalStatusSuccess ExternalStatus = "success"
	ExternalStatusFailed  ExternalStatus = "failed"
)

// ParseExternalStatus normalizes the free-form status strings returned by the rail.
func ParseExternalStatus(raw string) ExternalStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful", "completed", "paid":
		return ExternalStatusSuccess
	case "failed", "failure", "cancelled", "canceled", "reversed", "rejected", "expired":
		return ExternalStatusFailed
	default:
		return ExternalStatusPending
	}
}
