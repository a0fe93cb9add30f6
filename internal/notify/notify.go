// Package notify delivers settlement and dispute notifications to members.
package notify

import (
	"context"
	"errors"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

// ErrNoAddress is returned when the contact cannot be reached on a channel.
var ErrNoAddress = errors.New("contact has no address for this channel")

// Sender delivers one event over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error
}

// LogSender writes the notification to the log. It is used when no real
// channel is configured.
type LogSender struct{}

func (LogSender) Channel() string { return "log" }

func (LogSender) Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error {
	logger.InfoContext(ctx, "Notification",
		"userID", to.UserID,
		"type", event.Type,
		"title", event.Title,
		"message", event.Message,
	)
	return nil
}
