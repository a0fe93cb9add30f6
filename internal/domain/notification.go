package domain

import "time"

type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// NotificationEvent is an outbox row. The engine only enqueues; delivery is
// done by the notification worker and never affects settlement state.
type NotificationEvent struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Attributes map[string]string  `json:"attributes"`
	Status     NotificationStatus `json:"status"`
	Attempts   int                `json:"attempts"`
	LastError  string             `json:"last_error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	SentAt     *time.Time         `json:"sent_at,omitempty"`
}

const (
	NotificationSettlementProcessing = "settlement_processing"
	NotificationSettlementCompleted  = "settlement_completed"
	NotificationSettlementFailed     = "settlement_failed"
	NotificationDisputeFiled         = "dispute_filed"
	NotificationDisputeResolved      = "dispute_resolved"
)

// Contact is where a member can be reached.
type Contact struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	FCMToken string `json:"-"`
}

// AuditEntry is an append-only record of a state-changing action.
type AuditEntry struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
