package notify

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"chipereganyu-settlement/internal/domain"
)

type mockEmailClient struct {
	mock.Mock
}

func (m *mockEmailClient) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	if r := args.Get(0); r != nil {
		return r.(*rest.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPushClient struct {
	mock.Mock
}

func (m *mockPushClient) Send(ctx context.Context, message *messaging.Message) (string, error) {
	args := m.Called(ctx, message)
	return args.String(0), args.Error(1)
}

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) DialAndSend(msgs ...*gomail.Message) error {
	args := m.Called(msgs)
	return args.Error(0)
}

var event = domain.NotificationEvent{
	ID:         "n-1",
	UserID:     "u-1",
	Type:       domain.NotificationSettlementCompleted,
	Title:      "Payout completed",
	Message:    "Your payout of 92000 MWK has been sent.",
	Attributes: map[string]string{"settlement_id": "s-1"},
}

func TestEmailSender_Send(t *testing.T) {
	ctx := context.Background()
	contact := domain.Contact{UserID: "u-1", Name: "Chisomo", Email: "chisomo@example.com"}

	t.Run("Success", func(t *testing.T) {
		client := new(mockEmailClient)
		client.On("SendWithContext", ctx, mock.MatchedBy(func(m *mail.SGMailV3) bool {
			return m.Subject == event.Title && m.Personalizations[0].To[0].Address == contact.Email
		})).Return(&rest.Response{StatusCode: 202}, nil)

		err := NewEmailSenderWithClient(client, "noreply@example.com", "Chipereganyu").Send(ctx, contact, event)
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("Error status", func(t *testing.T) {
		client := new(mockEmailClient)
		client.On("SendWithContext", ctx, mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil)

		err := NewEmailSenderWithClient(client, "noreply@example.com", "Chipereganyu").Send(ctx, contact, event)
		assert.ErrorContains(t, err, "status 401")
	})

	t.Run("No email address", func(t *testing.T) {
		client := new(mockEmailClient)
		err := NewEmailSenderWithClient(client, "noreply@example.com", "Chipereganyu").Send(ctx, domain.Contact{UserID: "u-1"}, event)
		assert.ErrorIs(t, err, ErrNoAddress)
		client.AssertNotCalled(t, "SendWithContext", mock.Anything, mock.Anything)
	})
}

func TestPushSender_Send(t *testing.T) {
	ctx := context.Background()
	contact := domain.Contact{UserID: "u-1", FCMToken: "token-1"}

	t.Run("Success", func(t *testing.T) {
		client := new(mockPushClient)
		client.On("Send", ctx, mock.MatchedBy(func(m *messaging.Message) bool {
			return m.Token == "token-1" &&
				m.Notification.Title == event.Title &&
				m.Data["settlement_id"] == "s-1" &&
				m.Data["type"] == domain.NotificationSettlementCompleted
		})).Return("msg-1", nil)

		require.NoError(t, NewPushSenderWithClient(client).Send(ctx, contact, event))
		client.AssertExpectations(t)
	})

	t.Run("Client error", func(t *testing.T) {
		client := new(mockPushClient)
		client.On("Send", ctx, mock.Anything).Return("", errors.New("registration-token-not-registered"))

		err := NewPushSenderWithClient(client).Send(ctx, contact, event)
		assert.ErrorContains(t, err, "registration-token-not-registered")
	})

	t.Run("No token", func(t *testing.T) {
		err := NewPushSenderWithClient(new(mockPushClient)).Send(ctx, domain.Contact{UserID: "u-1"}, event)
		assert.ErrorIs(t, err, ErrNoAddress)
	})
}

func TestSMTPSender_Send(t *testing.T) {
	ctx := context.Background()
	contact := domain.Contact{UserID: "u-1", Name: "Chisomo", Email: "chisomo@example.com"}

	t.Run("Success", func(t *testing.T) {
		dialer := new(mockDialer)
		dialer.On("DialAndSend", mock.MatchedBy(func(msgs []*gomail.Message) bool {
			return len(msgs) == 1 &&
				msgs[0].GetHeader("Subject")[0] == event.Title &&
				msgs[0].GetHeader("From")[0] == "noreply@example.com"
		})).Return(nil)

		sender := NewSMTPSenderWithDialer(dialer, "noreply@example.com")
		assert.Equal(t, "smtp", sender.Channel())
		require.NoError(t, sender.Send(ctx, contact, event))
		dialer.AssertExpectations(t)
	})

	t.Run("Relay error", func(t *testing.T) {
		dialer := new(mockDialer)
		dialer.On("DialAndSend", mock.Anything).Return(errors.New("535 authentication failed"))

		err := NewSMTPSenderWithDialer(dialer, "noreply@example.com").Send(ctx, contact, event)
		assert.ErrorContains(t, err, "535 authentication failed")
	})

	t.Run("No email address", func(t *testing.T) {
		dialer := new(mockDialer)
		err := NewSMTPSenderWithDialer(dialer, "noreply@example.com").Send(ctx, domain.Contact{UserID: "u-1"}, event)
		assert.ErrorIs(t, err, ErrNoAddress)
		dialer.AssertNotCalled(t, "DialAndSend", mock.Anything)
	})
}

func TestLogSender(t *testing.T) {
	var s Sender = LogSender{}
	assert.Equal(t, "log", s.Channel())
	assert.NoError(t, s.Send(context.Background(), domain.Contact{UserID: "u-1"}, event))
}
