package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/notify"
	"chipereganyu-settlement/internal/service"
)

type MockSender struct {
	mock.Mock
	channel string
}

func (m *MockSender) Channel() string { return m.channel }

func (m *MockSender) Send(ctx context.Context, to domain.Contact, event domain.NotificationEvent) error {
	args := m.Called(ctx, to, event)
	return args.Error(0)
}

func enqueue(t *testing.T, store *memStore, id, userID string) {
	t.Helper()
	require.NoError(t, memNotifications{store}.Enqueue(context.Background(), &domain.NotificationEvent{
		ID:     id,
		UserID: userID,
		Type:   domain.NotificationSettlementCompleted,
		Title:  "Payment completed",
		Status: domain.NotificationStatusPending,
	}))
}

func notificationStatus(store *memStore, id string) domain.NotificationEvent {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, n := range store.notifications {
		if n.ID == id {
			return n
		}
	}
	return domain.NotificationEvent{}
}

func TestNotificationService_DeliverPending(t *testing.T) {
	store := newMemStore()
	store.contacts["u-1"] = domain.Contact{UserID: "u-1", Email: "chisomo@example.com"}
	enqueue(t, store, "n-1", "u-1")
	enqueue(t, store, "n-2", "u-unknown")

	email := &MockSender{channel: "email"}
	push := &MockSender{channel: "push"}
	email.On("Send", mock.Anything, mock.MatchedBy(func(c domain.Contact) bool { return c.UserID == "u-1" }), mock.Anything).Return(nil)
	push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(notify.ErrNoAddress)

	svc := service.NewNotificationService(memNotifications{store}, memContacts{store}, []notify.Sender{email, push},
		service.NotificationConfig{BatchSize: 10, MaxAttempts: 3, Concurrency: 2})

	delivered, err := svc.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	assert.Equal(t, domain.NotificationStatusDelivered, notificationStatus(store, "n-1").Status)
	// The contact is still unknown on the first attempt; it stays queued.
	n2 := notificationStatus(store, "n-2")
	assert.Equal(t, domain.NotificationStatusPending, n2.Status)
	assert.NotEmpty(t, n2.LastError)

	email.AssertNumberOfCalls(t, "Send", 1)
	push.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotificationService_RetriesUntilFinal(t *testing.T) {
	store := newMemStore()
	store.contacts["u-1"] = domain.Contact{UserID: "u-1", Email: "chisomo@example.com"}
	enqueue(t, store, "n-1", "u-1")

	email := &MockSender{channel: "email"}
	email.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sendgrid: 503"))

	svc := service.NewNotificationService(memNotifications{store}, memContacts{store}, []notify.Sender{email},
		service.NotificationConfig{BatchSize: 10, MaxAttempts: 2, Concurrency: 1})
	ctx := context.Background()

	delivered, err := svc.DeliverPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, domain.NotificationStatusPending, notificationStatus(store, "n-1").Status)

	_, err = svc.DeliverPending(ctx)
	require.NoError(t, err)
	n := notificationStatus(store, "n-1")
	assert.Equal(t, domain.NotificationStatusFailed, n.Status)
	assert.Equal(t, 2, n.Attempts)

	delivered, err = svc.DeliverPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	email.AssertNumberOfCalls(t, "Send", 2)
}

func TestNotificationService_NoAddressIsFinal(t *testing.T) {
	store := newMemStore()
	store.contacts["u-1"] = domain.Contact{UserID: "u-1"}
	enqueue(t, store, "n-1", "u-1")

	push := &MockSender{channel: "push"}
	push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(notify.ErrNoAddress)

	svc := service.NewNotificationService(memNotifications{store}, memContacts{store}, []notify.Sender{push},
		service.NotificationConfig{MaxAttempts: 5})

	_, err := svc.DeliverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationStatusFailed, notificationStatus(store, "n-1").Status)
}
