package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

// activity records the best-effort side effects of a state change: the
// outbox notification and the audit entry. Failures are logged and dropped.
type activity struct {
	notifications repository.NotificationRepository
	audit         repository.AuditRepository
}

func (a *activity) notify(ctx context.Context, userID, eventType, title, message string, attrs map[string]string) {
	if a.notifications == nil || userID == "" {
		return
	}
	event := &domain.NotificationEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       eventType,
		Title:      title,
		Message:    message,
		Attributes: attrs,
		Status:     domain.NotificationStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.notifications.Enqueue(ctx, event); err != nil {
		logger.Warn("Failed to enqueue notification", "userID", userID, "type", eventType, "error", err)
	}
}

func (a *activity) record(ctx context.Context, action, entityType, entityID, actorID string, details map[string]string) {
	if a.audit == nil {
		return
	}
	entry := &domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.audit.Record(ctx, entry); err != nil {
		logger.Warn("Failed to record audit entry", "action", action, "entityID", entityID, "error", err)
	}
}
