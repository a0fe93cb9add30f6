package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/service"
)

// completedPayout returns a mobile money payout of 100,000 gross that the
// rail has confirmed.
func completedPayout(t *testing.T, env *testEnv, key string) *domain.Settlement {
	t.Helper()
	ctx := context.Background()
	env.gateway.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(accepted("ref-"+key), nil).Times(1)
	st, err := env.engine.Submit(ctx, mobilePayout(key, 100000))
	require.NoError(t, err)
	st, err = env.engine.Reconcile(ctx, st.ID, domain.ExternalStatusSuccess, "")
	require.NoError(t, err)
	require.Equal(t, domain.SettlementStatusCompleted, st.Status)
	return st
}

func disputeRequest(transactionID, reason string) service.FileDisputeRequest {
	return service.FileDisputeRequest{
		TransactionID: transactionID,
		UserID:        "u-1",
		Type:          domain.DisputeTypeDuplicate,
		Reason:        reason,
	}
}

func TestDisputeService_FileDispute(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAny()
	ctx := context.Background()
	st := completedPayout(t, env, "disp-1")

	_, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, "wrong"))
	assert.ErrorIs(t, err, domain.ErrInvalidReason)

	reason := strings.Repeat("charged twice ", 4)[:50]
	d, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, reason))
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusPending, d.Status)
	assert.Equal(t, int64(92000), d.Amount)
	assert.Equal(t, st.ID, d.TransactionID)
	assert.Contains(t, env.store.notificationTypes("u-1"), domain.NotificationDisputeFiled)
	assert.Contains(t, env.store.auditActions(), "dispute.filed")

	t.Run("Second pending dispute", func(t *testing.T) {
		_, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, reason))
		assert.ErrorIs(t, err, domain.ErrDuplicateDispute)
	})

	t.Run("Not the owner", func(t *testing.T) {
		req := disputeRequest(st.ID, reason)
		req.UserID = "u-2"
		_, err := env.disputes.FileDispute(ctx, req)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Amount above what moved", func(t *testing.T) {
		req := disputeRequest(st.ID, reason)
		req.Amount = 100000
		_, err := env.disputes.FileDispute(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("Unknown type", func(t *testing.T) {
		req := disputeRequest(st.ID, reason)
		req.Type = "fraud"
		_, err := env.disputes.FileDispute(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidIntent)
	})

	t.Run("Unknown transaction", func(t *testing.T) {
		_, err := env.disputes.FileDispute(ctx, disputeRequest("missing", reason))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestDisputeService_ResolveApproved(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAny()
	ctx := context.Background()
	st := completedPayout(t, env, "disp-2")

	d, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, "I was charged twice for the same contribution"))
	require.NoError(t, err)

	_, err = env.disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "  ")
	assert.ErrorIs(t, err, domain.ErrMissingNotes)

	env.gateway.EXPECT().Initiate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.GatewayRequest) (*domain.GatewayResult, error) {
			assert.Equal(t, domain.DirectionReversal, req.Direction)
			assert.Equal(t, int64(92000), req.Amount)
			assert.Equal(t, fmt.Sprintf("dispute:%s:1", d.ID), req.ChargeID)
			return accepted("ref-refund"), nil
		})

	resolved, err := env.disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "Confirmed double charge")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusApproved, resolved.Status)
	assert.Equal(t, "Confirmed double charge", resolved.AdminNotes)
	require.NotNil(t, resolved.RefundSettlementID)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "admin-1", *resolved.ResolvedBy)

	refund := env.store.settlement(*resolved.RefundSettlementID)
	assert.Equal(t, domain.DirectionReversal, refund.Intent.Direction)
	require.NotNil(t, refund.Intent.DisputeID)
	assert.Equal(t, d.ID, *refund.Intent.DisputeID)
	assert.Zero(t, refund.Fees.TotalFees)
	assert.Contains(t, env.store.notificationTypes("u-1"), domain.NotificationDisputeResolved)

	t.Run("Resolved only once", func(t *testing.T) {
		_, err := env.disputes.ResolveDispute(ctx, d.ID, "admin-2", domain.DisputeStatusRejected, "Duplicate review")
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})
}

func TestDisputeService_ResolveRefundRejected(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAny()
	ctx := context.Background()
	st := completedPayout(t, env, "disp-3")

	d, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, "I was charged twice for the same contribution"))
	require.NoError(t, err)

	gomock.InOrder(
		env.gateway.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, rejected("wallet suspended")),
		env.gateway.EXPECT().Initiate(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req domain.GatewayRequest) (*domain.GatewayResult, error) {
				assert.Equal(t, fmt.Sprintf("dispute:%s:2", d.ID), req.ChargeID)
				return accepted("ref-refund-2"), nil
			}),
	)

	_, err = env.disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "Confirmed double charge")
	assert.ErrorIs(t, err, domain.ErrGatewayRejected)

	stored, err := memDisputes{env.store}.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusPending, stored.Status)

	resolved, err := env.disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "Confirmed double charge")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusApproved, resolved.Status)
}

// flakyDisputes fails the next Resolve calls while failures is positive.
type flakyDisputes struct {
	memDisputes
	failures int
}

func (f *flakyDisputes) Resolve(ctx context.Context, d *domain.Dispute) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.memDisputes.Resolve(ctx, d)
}

func TestDisputeService_ReapproveReusesRefundInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAny()
	ctx := context.Background()
	st := completedPayout(t, env, "disp-5")

	disputeRepo := &flakyDisputes{memDisputes: memDisputes{env.store}, failures: 1}
	disputes := service.NewDisputeService(env.engine, disputeRepo, memSettlements{env.store}, memAccounts{env.store},
		memNotifications{env.store}, memAudit{env.store}, service.DisputeConfig{MinReasonLength: 20})

	d, err := disputes.FileDispute(ctx, disputeRequest(st.ID, "I was charged twice for the same contribution"))
	require.NoError(t, err)

	// Only one refund may ever reach the rail.
	env.gateway.EXPECT().Initiate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req domain.GatewayRequest) (*domain.GatewayResult, error) {
			assert.Equal(t, fmt.Sprintf("dispute:%s:1", d.ID), req.ChargeID)
			return accepted("ref-refund"), nil
		}).Times(1)

	_, err = disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "Confirmed double charge")
	assert.ErrorContains(t, err, "connection reset")

	stored, err := memDisputes{env.store}.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusPending, stored.Status)

	resolved, err := disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusApproved, "Confirmed double charge")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusApproved, resolved.Status)

	refunds, err := memSettlements{env.store}.ListByDispute(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.SettlementStatusProcessing, refunds[0].Status)
	require.NotNil(t, resolved.RefundSettlementID)
	assert.Equal(t, refunds[0].ID, *resolved.RefundSettlementID)
}

func TestDisputeService_ResolveRejected(t *testing.T) {
	env := newTestEnv(t)
	env.resolveAny()
	ctx := context.Background()
	st := completedPayout(t, env, "disp-4")

	d, err := env.disputes.FileDispute(ctx, disputeRequest(st.ID, "The money never reached my wallet at all"))
	require.NoError(t, err)

	_, err = env.disputes.ResolveDispute(ctx, d.ID, "admin-1", "closed", "notes")
	assert.ErrorIs(t, err, domain.ErrInvalidIntent)

	resolved, err := env.disputes.ResolveDispute(ctx, d.ID, "admin-1", domain.DisputeStatusRejected, "Rail shows delivery")
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusRejected, resolved.Status)
	assert.Nil(t, resolved.RefundSettlementID)

	list, total, err := env.disputes.ListDisputes(ctx, domain.DisputeStatusRejected, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, d.ID, list[0].ID)
}
