package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends plain text email through an SMTP relay.
type SMTPSender struct {
	dialer mailDialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return NewSMTPSenderWithDialer(gomail.NewDialer(host, port, username, password), from)
}

func NewSMTPSenderWithDialer(dialer mailDialer, from string) *SMTPSender {
	return &SMTPSender{dialer: dialer, from: from}
}

func (s *SMTPSender) Channel() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	logger.ExternalServiceCall("smtp", "send", "userID", to.UserID, "type", event.Type)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", to.Email, to.Name)
	m.SetHeader("Subject", event.Title)
	m.SetBody("text/plain", fmt.Sprintf("Hello %s,\n\n%s\n\nThe Chipereganyu Team", to.Name, event.Message))

	if err := s.dialer.DialAndSend(m); err != nil {
		err = fmt.Errorf("failed to send email via smtp: %w", err)
		logger.ExternalServiceResult("smtp", "send", err)
		return err
	}

	logger.ExternalServiceResult("smtp", "send", nil)
	return nil
}
