package notify

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

type pushClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSender sends notifications through Firebase Cloud Messaging.
type PushSender struct {
	client pushClient
}

func NewPushSender(ctx context.Context, credentialsFile string) (*PushSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return NewPushSenderWithClient(client), nil
}

func NewPushSenderWithClient(client pushClient) *PushSender {
	return &PushSender{client: client}
}

func (s *PushSender) Channel() string { return "push" }

func (s *PushSender) Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error {
	if to.FCMToken == "" {
		return ErrNoAddress
	}
	logger.ExternalServiceCall("fcm", "send", "userID", to.UserID, "type", event.Type)

	data := make(map[string]string, len(event.Attributes)+1)
	for k, v := range event.Attributes {
		data[k] = v
	}
	data["type"] = event.Type

	id, err := s.client.Send(ctx, &messaging.Message{
		Token: to.FCMToken,
		Notification: &messaging.Notification{
			Title: event.Title,
			Body:  event.Message,
		},
		Data: data,
	})
	if err != nil {
		err = fmt.Errorf("failed to send push notification: %w", err)
		logger.ExternalServiceResult("fcm", "send", err)
		return err
	}

	logger.ExternalServiceResult("fcm", "send", nil, "messageID", id)
	return nil
}
