package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/repository"
)

type contactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) repository.ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) GetContact(ctx context.Context, userID string) (*domain.Contact, error) {
	c := domain.Contact{UserID: userID}
	query := `SELECT full_name, COALESCE(email, ''), COALESCE(fcm_token, '') FROM profiles WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&c.Name, &c.Email, &c.FCMToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "profile %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_logs (id, action, entity_type, entity_id, actor_id, details, created_at)
	          VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`
	_, err = r.db.ExecContext(ctx, query, e.ID, e.Action, e.EntityType, e.EntityID, e.ActorID, details, e.CreatedAt)
	return err
}
