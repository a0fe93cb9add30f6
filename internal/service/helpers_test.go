package service_test

import (
	"testing"

	"github.com/golang/mock/gomock"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/service"
	mock_service "chipereganyu-settlement/internal/service/mocks"
	"chipereganyu-settlement/internal/utils"
)

type testEnv struct {
	store    *memStore
	gateway  *mock_service.MockGateway
	reserve  service.ReserveService
	engine   service.SettlementService
	payouts  service.PayoutService
	retries  service.RetryService
	disputes service.DisputeService
}

func newTestEnv(t *testing.T) *testEnv {
	ctrl := gomock.NewController(t)
	store := newMemStore()
	gw := mock_service.NewMockGateway(ctrl)

	reserve := service.NewReserveService(memReserve{store})
	engine := service.NewSettlementService(
		memSettlements{store}, memPayouts{store}, memContributions{store},
		memNotifications{store}, memAudit{store},
		reserve, gw,
		service.EngineConfig{Fees: utils.DefaultFeeSchedule, MinGrossAmount: 1},
	)

	return &testEnv{
		store:   store,
		gateway: gw,
		reserve: reserve,
		engine:  engine,
		payouts: service.NewPayoutService(engine, memPayouts{store}, memContributions{store}, memAccounts{store}, memAudit{store}),
		retries: service.NewRetryService(engine, memSettlements{store}, memAccounts{store}, memPayouts{store}, memAudit{store},
			service.RetryConfig{MaxAttempts: 3}),
		disputes: service.NewDisputeService(engine, memDisputes{store}, memSettlements{store}, memAccounts{store},
			memNotifications{store}, memAudit{store}, service.DisputeConfig{MinReasonLength: 20}),
	}
}

// resolveAny makes Resolve build routes the way the real adapter does for
// valid input.
func (e *testEnv) resolveAny() {
	e.gateway.EXPECT().Resolve(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(direction domain.Direction, rail domain.Rail, d domain.RailDetails) (domain.Route, error) {
			if rail == domain.RailMobileMoney {
				return domain.MobileMoneyRoute{Operator: domain.Operator{Name: d.Provider, RefID: "op-" + d.Provider}, Phone: d.Phone}, nil
			}
			if direction == domain.DirectionCollection {
				return domain.VirtualAccountRoute{}, nil
			}
			return domain.BankRoute{Bank: domain.Bank{Name: d.BankName, UUID: "bank-1"}, AccountNumber: d.AccountNumber, AccountName: d.AccountName}, nil
		}).AnyTimes()
}

func accepted(ref string) *domain.GatewayResult {
	return &domain.GatewayResult{ExternalRef: ref, RawStatus: "pending", Status: domain.ExternalStatusPending}
}

func mobilePayout(key string, gross int64) domain.SettlementIntent {
	return domain.SettlementIntent{
		Direction:      domain.DirectionPayout,
		GroupID:        "g-1",
		UserID:         "u-1",
		GrossAmount:    gross,
		Rail:           domain.RailMobileMoney,
		RailDetails:    domain.RailDetails{Phone: "0991234567", Provider: "airtel"},
		IdempotencyKey: key,
		RequestedBy:    "u-1",
	}
}

func bankPayout(key string, gross int64) domain.SettlementIntent {
	return domain.SettlementIntent{
		Direction:      domain.DirectionPayout,
		GroupID:        "g-1",
		UserID:         "u-1",
		GrossAmount:    gross,
		Rail:           domain.RailBankTransfer,
		RailDetails:    domain.RailDetails{BankName: "National Bank", AccountNumber: "1001", AccountName: "Chisomo Banda"},
		IdempotencyKey: key,
		RequestedBy:    "u-1",
	}
}
