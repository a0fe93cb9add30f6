package service

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
	"chipereganyu-settlement/internal/metrics"
	"chipereganyu-settlement/internal/notify"
	"chipereganyu-settlement/internal/repository"
)

// NotificationConfig controls the outbox delivery worker.
type NotificationConfig struct {
	BatchSize   int
	MaxAttempts int
	Concurrency int
}

type notificationService struct {
	notificationRepo repository.NotificationRepository
	contactRepo      repository.ContactRepository
	senders          []notify.Sender
	cfg              NotificationConfig
}

func NewNotificationService(
	notificationRepo repository.NotificationRepository,
	contactRepo repository.ContactRepository,
	senders []notify.Sender,
	cfg NotificationConfig,
) NotificationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if len(senders) == 0 {
		senders = []notify.Sender{notify.LogSender{}}
	}
	return &notificationService{
		notificationRepo: notificationRepo,
		contactRepo:      contactRepo,
		senders:          senders,
		cfg:              cfg,
	}
}

func (s *notificationService) DeliverPending(ctx context.Context) (int, error) {
	events, err := s.notificationRepo.ClaimPending(ctx, s.cfg.BatchSize, s.cfg.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	logger.Info("Delivering notifications", "count", len(events))

	var delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, event := range events {
		g.Go(func() error {
			ok, err := s.deliver(gctx, event)
			if ok {
				delivered.Add(1)
			}
			return err
		})
	}
	err = g.Wait()
	return int(delivered.Load()), err
}

// deliver sends one event on every channel. It succeeds when at least one
// channel accepted it. Only bookkeeping failures are returned as errors.
func (s *notificationService) deliver(ctx context.Context, event domain.NotificationEvent) (bool, error) {
	contact, err := s.contactRepo.GetContact(ctx, event.UserID)
	if err != nil {
		return false, s.markFailed(ctx, event, err)
	}

	var errs []error
	sent := false
	for _, sender := range s.senders {
		err := sender.Send(ctx, *contact, event)
		switch {
		case err == nil:
			sent = true
			metrics.NotificationsDelivered.WithLabelValues(sender.Channel(), "delivered").Inc()
		case errors.Is(err, notify.ErrNoAddress):
			metrics.NotificationsDelivered.WithLabelValues(sender.Channel(), "skipped").Inc()
		default:
			errs = append(errs, err)
			metrics.NotificationsDelivered.WithLabelValues(sender.Channel(), "failed").Inc()
		}
	}

	if !sent {
		cause := errors.Join(errs...)
		if cause == nil {
			cause = notify.ErrNoAddress
		}
		return false, s.markFailed(ctx, event, cause)
	}
	if err := s.notificationRepo.MarkDelivered(ctx, event.ID); err != nil {
		return true, err
	}
	return true, nil
}

func (s *notificationService) markFailed(ctx context.Context, event domain.NotificationEvent, cause error) error {
	final := event.Attempts >= s.cfg.MaxAttempts || errors.Is(cause, notify.ErrNoAddress)
	logger.Warn("Notification delivery failed", "eventID", event.ID, "userID", event.UserID, "attempt", event.Attempts, "final", final, "error", cause)
	return s.notificationRepo.MarkFailed(ctx, event.ID, cause.Error(), final)
}
