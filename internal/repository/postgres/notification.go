package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/repository"
)

// notificationLease keeps a claimed event away from other workers while it is
// being delivered.
const notificationLease = "5 minutes"

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Enqueue(ctx context.Context, e *domain.NotificationEvent) error {
	logger.EnterMethod("notificationRepository.Enqueue", "userID", e.UserID, "type", e.Type)

	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Enqueue", err, "reason", "failed to marshal attributes")
		return err
	}

	query := `INSERT INTO notification_events (id, user_id, type, title, message, attributes, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	logger.DatabaseCall("INSERT", "notification_events", "userID", e.UserID)
	_, err = r.db.ExecContext(ctx, query, e.ID, e.UserID, e.Type, e.Title, e.Message, attrs, e.Status, e.CreatedAt)
	logger.DatabaseResult("INSERT", 1, err, "eventID", e.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Enqueue", err, "userID", e.UserID)
		return fmt.Errorf("enqueue notification: %w", err)
	}
	logger.ExitMethod("notificationRepository.Enqueue", "eventID", e.ID)
	return nil
}

func (r *notificationRepository) ClaimPending(ctx context.Context, limit, maxAttempts int) ([]domain.NotificationEvent, error) {
	query := `UPDATE notification_events SET attempts = attempts + 1, locked_until = NOW() + INTERVAL '` + notificationLease + `'
	          WHERE id IN (
	              SELECT id FROM notification_events
	              WHERE status = 'pending' AND attempts < $2 AND (locked_until IS NULL OR locked_until < NOW())
	              ORDER BY created_at ASC
	              LIMIT $1
	              FOR UPDATE SKIP LOCKED
	          )
	          RETURNING id, user_id, type, title, message, attributes, status, attempts, last_error, created_at`
	logger.DatabaseCall("UPDATE", "notification_events", "limit", limit)

	rows, err := r.db.QueryContext(ctx, query, limit, maxAttempts)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	var events []domain.NotificationEvent
	for rows.Next() {
		var e domain.NotificationEvent
		var attrs []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Title, &e.Message, &attrs, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	logger.DatabaseResult("UPDATE", int64(len(events)), rows.Err())
	return events, rows.Err()
}

func (r *notificationRepository) MarkDelivered(ctx context.Context, id string) error {
	query := `UPDATE notification_events SET status = 'delivered', sent_at = NOW(), locked_until = NULL, last_error = '' WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *notificationRepository) MarkFailed(ctx context.Context, id string, reason string, final bool) error {
	status := domain.NotificationStatusPending
	if final {
		status = domain.NotificationStatusFailed
	}
	query := `UPDATE notification_events SET status = $2, last_error = $3, locked_until = NULL WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status, reason)
	return err
}
