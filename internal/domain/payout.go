package domain

import "time"

type PayoutStatus string

const (
	PayoutStatusScheduled  PayoutStatus = "scheduled"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// Payout is one member's turn to receive the pooled amount of a group cycle.
type Payout struct {
	ID           string       `json:"id"`
	GroupID      string       `json:"group_id"`
	RecipientID  string       `json:"recipient_id"`
	CycleNumber  int          `json:"cycle_number"`
	Amount       int64        `json:"amount"`
	DueDate      time.Time    `json:"due_date"`
	Status       PayoutStatus `json:"status"`
	SettlementID *string      `json:"settlement_id,omitempty"`
	Attempts     int          `json:"attempts"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type ContributionStatus string

const (
	ContributionStatusPending   ContributionStatus = "pending"
	ContributionStatusCompleted ContributionStatus = "completed"
	ContributionStatusFailed    ContributionStatus = "failed"
)

// Contribution is a member's payment into a group cycle.
type Contribution struct {
	ID           string             `json:"id"`
	GroupID      string             `json:"group_id"`
	UserID       string             `json:"user_id"`
	CycleNumber  int                `json:"cycle_number"`
	Amount       int64              `json:"amount"`
	Status       ContributionStatus `json:"status"`
	SettlementID *string            `json:"settlement_id,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// PayoutAccount is a saved mobile money wallet or bank account of a member.
type PayoutAccount struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Rail      Rail        `json:"rail"`
	Details   RailDetails `json:"details"`
	IsPrimary bool        `json:"is_primary"`
}
