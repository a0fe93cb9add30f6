package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	api "chipereganyu-settlement/internal/api/http"
	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/gateway"
	"chipereganyu-settlement/internal/security"
	"chipereganyu-settlement/internal/service"
)

const (
	jwtSecret     = "test-secret-key-that-is-long-enough"
	webhookSecret = "whsec-test"
)

type MockSettlementService struct{ mock.Mock }

func (m *MockSettlementService) Submit(ctx context.Context, intent domain.SettlementIntent) (*domain.Settlement, error) {
	args := m.Called(ctx, intent)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockSettlementService) Reconcile(ctx context.Context, id string, status domain.ExternalStatus, reason string) (*domain.Settlement, error) {
	args := m.Called(ctx, id, status, reason)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockSettlementService) ReconcileByReference(ctx context.Context, ref string, status domain.ExternalStatus, reason string) (*domain.Settlement, error) {
	args := m.Called(ctx, ref, status, reason)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockSettlementService) RecoverStale(ctx context.Context, id string) (*domain.Settlement, error) {
	args := m.Called(ctx, id)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockSettlementService) GetSettlement(ctx context.Context, id string) (*domain.Settlement, error) {
	args := m.Called(ctx, id)
	return settlementArg(args, 0), args.Error(1)
}

type MockPayoutService struct{ mock.Mock }

func (m *MockPayoutService) SubmitContribution(ctx context.Context, req service.ContributionRequest) (*domain.Settlement, error) {
	args := m.Called(ctx, req)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockPayoutService) RequestInstantPayout(ctx context.Context, payoutID, accountID, requesterID string) (*domain.Settlement, error) {
	args := m.Called(ctx, payoutID, accountID, requesterID)
	return settlementArg(args, 0), args.Error(1)
}

func (m *MockPayoutService) TriggerManualPayout(ctx context.Context, payoutID, adminID string) (*domain.Settlement, error) {
	args := m.Called(ctx, payoutID, adminID)
	return settlementArg(args, 0), args.Error(1)
}

type MockRetryService struct{ mock.Mock }

func (m *MockRetryService) Retry(ctx context.Context, req service.RetryRequest) (*domain.Settlement, error) {
	args := m.Called(ctx, req)
	return settlementArg(args, 0), args.Error(1)
}

type MockDisputeService struct{ mock.Mock }

func (m *MockDisputeService) FileDispute(ctx context.Context, req service.FileDisputeRequest) (*domain.Dispute, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dispute), args.Error(1)
}

func (m *MockDisputeService) ResolveDispute(ctx context.Context, disputeID, adminID string, resolution domain.DisputeStatus, notes string) (*domain.Dispute, error) {
	args := m.Called(ctx, disputeID, adminID, resolution, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Dispute), args.Error(1)
}

func (m *MockDisputeService) ListDisputes(ctx context.Context, status domain.DisputeStatus, page, pageSize int) ([]domain.Dispute, int, error) {
	args := m.Called(ctx, status, page, pageSize)
	return args.Get(0).([]domain.Dispute), args.Int(1), args.Error(2)
}

type MockReserveService struct{ mock.Mock }

func (m *MockReserveService) Credit(ctx context.Context, mv domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	args := m.Called(ctx, mv)
	return nil, args.Error(1)
}

func (m *MockReserveService) Debit(ctx context.Context, mv domain.ReserveMovement) (*domain.ReserveLedgerEntry, error) {
	args := m.Called(ctx, mv)
	return nil, args.Error(1)
}

func (m *MockReserveService) CurrentBalance(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReserveService) ListEntries(ctx context.Context, page, pageSize int) ([]domain.ReserveLedgerEntry, int, error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).([]domain.ReserveLedgerEntry), args.Int(1), args.Error(2)
}

func (m *MockReserveService) Audit(ctx context.Context) (*domain.ReserveAudit, error) {
	args := m.Called(ctx)
	return nil, args.Error(1)
}

func settlementArg(args mock.Arguments, i int) *domain.Settlement {
	if args.Get(i) == nil {
		return nil
	}
	return args.Get(i).(*domain.Settlement)
}

type apiEnv struct {
	server      *httptest.Server
	tokens      security.TokenManager
	settlements *MockSettlementService
	payouts     *MockPayoutService
	retries     *MockRetryService
	disputes    *MockDisputeService
	reserve     *MockReserveService
}

func newAPIEnv(t *testing.T) *apiEnv {
	env := &apiEnv{
		tokens:      security.NewTokenManager(jwtSecret, "test", time.Hour),
		settlements: &MockSettlementService{},
		payouts:     &MockPayoutService{},
		retries:     &MockRetryService{},
		disputes:    &MockDisputeService{},
		reserve:     &MockReserveService{},
	}
	h := api.NewHandler(service.Services{
		Settlements: env.settlements,
		Payouts:     env.payouts,
		Retries:     env.retries,
		Disputes:    env.disputes,
		Reserve:     env.reserve,
	})
	env.server = httptest.NewServer(api.NewRouter(h, api.NewAuthMiddleware(env.tokens), webhookSecret))
	t.Cleanup(env.server.Close)
	return env
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *apiEnv) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	tok, err := e.tokens.GenerateAccessToken(userID, userID+"@example.com", roles)
	require.NoError(t, err)
	return tok
}

func TestRouter_Authentication(t *testing.T) {
	env := newAPIEnv(t)

	status, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	status, body = env.do(t, http.MethodGet, "/v1/settlements/s-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, body.Success)

	status, _ = env.do(t, http.MethodGet, "/v1/settlements/s-1", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.do(t, http.MethodGet, "/v1/admin/reserve", env.token(t, "u-1"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotAuthorized", body.Kind)
}

func TestRouter_SubmitContribution(t *testing.T) {
	env := newAPIEnv(t)
	st := &domain.Settlement{ID: "s-1", Status: domain.SettlementStatusProcessing}

	env.payouts.On("SubmitContribution", mock.Anything, service.ContributionRequest{
		GroupID:     "g-1",
		UserID:      "u-1",
		CycleNumber: 2,
		Amount:      20000,
		Rail:        domain.RailMobileMoney,
		RailDetails: domain.RailDetails{Phone: "0991234567", Provider: "airtel"},
		ChargeID:    "charge-1",
	}).Return(st, nil)

	status, body := env.do(t, http.MethodPost, "/v1/contributions", env.token(t, "u-1"), map[string]any{
		"group_id":     "g-1",
		"cycle_number": 2,
		"amount":       20000,
		"rail":         "mobile_money",
		"rail_details": map[string]string{"phone": "0991234567", "provider": "airtel"},
		"charge_id":    "charge-1",
	})
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, body.Success)

	var got domain.Settlement
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "s-1", got.ID)
	env.payouts.AssertExpectations(t)
}

func TestRouter_RejectedSettlementIsReturned(t *testing.T) {
	env := newAPIEnv(t)
	failed := &domain.Settlement{ID: "s-2", Status: domain.SettlementStatusFailed, FailureReason: "insufficient float"}

	env.payouts.On("RequestInstantPayout", mock.Anything, "p-1", "a-1", "u-1").
		Return(failed, domain.NewError(domain.KindGatewayRejected, "%s", "insufficient float"))

	status, body := env.do(t, http.MethodPost, "/v1/payouts/p-1/instant", env.token(t, "u-1"), map[string]string{"account_id": "a-1"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.False(t, body.Success)
	assert.Equal(t, "insufficient float", body.Error)
	assert.Equal(t, "GatewayRejected", body.Kind)

	var got domain.Settlement
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, domain.SettlementStatusFailed, got.Status)
}

func TestRouter_GetSettlement(t *testing.T) {
	env := newAPIEnv(t)
	st := &domain.Settlement{ID: "s-1", Intent: domain.SettlementIntent{UserID: "u-1"}}
	env.settlements.On("GetSettlement", mock.Anything, "s-1").Return(st, nil)
	env.settlements.On("GetSettlement", mock.Anything, "missing").Return(nil, domain.NewError(domain.KindNotFound, "settlement missing not found"))

	status, _ := env.do(t, http.MethodGet, "/v1/settlements/s-1", env.token(t, "u-1"), nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/v1/settlements/s-1", env.token(t, "u-2"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NotFound", body.Kind)

	status, _ = env.do(t, http.MethodGet, "/v1/settlements/s-1", env.token(t, "ops", security.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/v1/settlements/missing", env.token(t, "u-1"), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_RetrySettlement(t *testing.T) {
	env := newAPIEnv(t)
	env.retries.On("Retry", mock.Anything, mock.MatchedBy(func(req service.RetryRequest) bool {
		return req.SettlementID == "s-1" && req.ActorID == "u-1" && !req.IsAdmin &&
			req.RailDetails != nil && req.RailDetails.Phone == "0997654321"
	})).Return(nil, domain.NewError(domain.KindRateLimited, "retry limit of 3 per 1h0m0s reached"))

	status, body := env.do(t, http.MethodPost, "/v1/settlements/s-1/retry", env.token(t, "u-1"), map[string]any{
		"rail_details": map[string]string{"phone": "0997654321", "provider": "airtel"},
	})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RateLimited", body.Kind)
	assert.Empty(t, body.Data)
}

func TestRouter_Disputes(t *testing.T) {
	env := newAPIEnv(t)
	d := &domain.Dispute{ID: "d-1", TransactionID: "s-1", Status: domain.DisputeStatusPending}

	env.disputes.On("FileDispute", mock.Anything, mock.MatchedBy(func(req service.FileDisputeRequest) bool {
		return req.UserID == "u-1" && req.TransactionID == "s-1" && req.Type == domain.DisputeTypeDuplicate
	})).Return(d, nil)
	env.disputes.On("ResolveDispute", mock.Anything, "d-1", "ops", domain.DisputeStatusApproved, "Confirmed double charge").
		Return(&domain.Dispute{ID: "d-1", Status: domain.DisputeStatusApproved}, nil)
	env.disputes.On("ListDisputes", mock.Anything, domain.DisputeStatusPending, 1, 20).Return([]domain.Dispute{*d}, 1, nil)

	status, body := env.do(t, http.MethodPost, "/v1/disputes", env.token(t, "u-1"), map[string]any{
		"transaction_id": "s-1",
		"type":           "duplicate",
		"reason":         "I was charged twice for the same contribution",
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, body.Success)

	admin := env.token(t, "ops", security.RoleAdmin)
	status, _ = env.do(t, http.MethodPost, "/v1/admin/disputes/d-1/resolve", admin, map[string]string{
		"resolution":  "approved",
		"admin_notes": "Confirmed double charge",
	})
	assert.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, "/v1/admin/disputes?status=pending", admin, nil)
	assert.Equal(t, http.StatusOK, status)
	var page struct {
		Items []domain.Dispute `json:"items"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.Equal(t, 1, page.Total)

	status, body = env.do(t, http.MethodPost, "/v1/disputes", env.token(t, "u-1"), map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidIntent", body.Kind)
}

func TestRouter_GetReserve(t *testing.T) {
	env := newAPIEnv(t)
	env.reserve.On("CurrentBalance", mock.Anything).Return(int64(4200), nil)
	env.reserve.On("ListEntries", mock.Anything, 2, 10).Return([]domain.ReserveLedgerEntry{{ID: "e-1", Amount: 4200}}, 11, nil)

	status, body := env.do(t, http.MethodGet, "/v1/admin/reserve?page=2&page_size=10", env.token(t, "ops", security.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, status)

	var view struct {
		Balance int64 `json:"balance"`
		Entries struct {
			Total int `json:"total"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &view))
	assert.Equal(t, int64(4200), view.Balance)
	assert.Equal(t, 11, view.Entries.Total)
}

func TestRouter_GatewayWebhook(t *testing.T) {
	env := newAPIEnv(t)
	payload := []byte(`{"event_type":"api.charge.payment","charge_id":"payout:p-1:1","status":"success"}`)

	env.settlements.On("ReconcileByReference", mock.Anything, "payout:p-1:1", domain.ExternalStatusSuccess, "").
		Return(&domain.Settlement{ID: "s-1", Status: domain.SettlementStatusCompleted}, nil).Once()

	post := func(signature string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/webhooks/gateway", bytes.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set(gateway.SignatureHeader, signature)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := post("deadbeef")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(gateway.Sign(payload, webhookSecret))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env.settlements.AssertExpectations(t)
}
