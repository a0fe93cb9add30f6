package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

type emailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailSender sends notifications through SendGrid.
type EmailSender struct {
	client    emailClient
	fromEmail string
	fromName  string
}

func NewEmailSender(apiKey, fromEmail, fromName string) *EmailSender {
	return NewEmailSenderWithClient(sendgrid.NewSendClient(apiKey), fromEmail, fromName)
}

func NewEmailSenderWithClient(client emailClient, fromEmail, fromName string) *EmailSender {
	return &EmailSender{client: client, fromEmail: fromEmail, fromName: fromName}
}

func (s *EmailSender) Channel() string { return "email" }

func (s *EmailSender) Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	logger.ExternalServiceCall("sendgrid", "send", "userID", to.UserID, "type", event.Type)

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(to.Name, to.Email)
	htmlContent := fmt.Sprintf("<p>Hello %s,</p><p>%s</p><p>The Chipereganyu Team</p>",
		html.EscapeString(to.Name), html.EscapeString(event.Message))
	message := mail.NewSingleEmail(from, event.Title, recipient, event.Message, htmlContent)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		logger.ExternalServiceResult("sendgrid", "send", err)
		return err
	}
	if response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err)
		return err
	}

	logger.ExternalServiceResult("sendgrid", "send", nil, "status", response.StatusCode)
	return nil
}
