package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chipereganyu-settlement/internal/repository"

	_ "github.com/lib/pq"
)

type Store struct {
	db *sql.DB
	repository.SettlementRepository
	repository.ReserveRepository
	repository.DisputeRepository
	repository.PayoutRepository
	repository.ContributionRepository
	repository.AccountRepository
	repository.NotificationRepository
	repository.ContactRepository
	repository.AuditRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		SettlementRepository:   NewSettlementRepository(db),
		ReserveRepository:      NewReserveRepository(db),
		DisputeRepository:      NewDisputeRepository(db),
		PayoutRepository:       NewPayoutRepository(db),
		ContributionRepository: NewContributionRepository(db),
		AccountRepository:      NewAccountRepository(db),
		NotificationRepository: NewNotificationRepository(db),
		ContactRepository:      NewContactRepository(db),
		AuditRepository:        NewAuditRepository(db),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}
