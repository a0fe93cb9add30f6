package domain

import "time"

type DisputeType string

const (
	DisputeTypeWrongAmount  DisputeType = "wrong_amount"
	DisputeTypeUnauthorized DisputeType = "unauthorized"
	DisputeTypeNotReceived  DisputeType = "not_received"
	DisputeTypeDuplicate    DisputeType = "duplicate"
	DisputeTypeOther        DisputeType = "other"
)

func (t DisputeType) Valid() bool {
	switch t {
	case DisputeTypeWrongAmount, DisputeTypeUnauthorized, DisputeTypeNotReceived, DisputeTypeDuplicate, DisputeTypeOther:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusPending  DisputeStatus = "pending"
	DisputeStatusApproved DisputeStatus = "approved"
	DisputeStatusRejected DisputeStatus = "rejected"
)

// Dispute is a member's claim against a settlement. TransactionID is a weak
// reference to the settlement id.
type Dispute struct {
	ID                 string        `json:"id"`
	TransactionID      string        `json:"transaction_id"`
	UserID             string        `json:"user_id"`
	Type               DisputeType   `json:"type"`
	Reason             string        `json:"reason"`
	Amount             int64         `json:"amount"`
	Evidence           []string      `json:"evidence,omitempty"`
	Status             DisputeStatus `json:"status"`
	AdminNotes         string        `json:"admin_notes,omitempty"`
	RefundSettlementID *string       `json:"refund_settlement_id,omitempty"`
	ResolvedAt         *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy         *string       `json:"resolved_by,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
