package service

import (
	"context"

	"chipereganyu-settlement/internal/domain"
)

// Gateway is the port to the payment rail adapter.
//
//go:generate mockgen -destination=mocks/mock_gateway.go -source=gateway.go -package=mock_service Gateway
type Gateway interface {
	// Resolve validates rail details against the lookup tables. It has no
	// side effects.
	Resolve(direction domain.Direction, rail domain.Rail, details domain.RailDetails) (domain.Route, error)
	Initiate(ctx context.Context, req domain.GatewayRequest) (*domain.GatewayResult, error)
	Verify(ctx context.Context, chargeID string) (*domain.GatewayResult, error)
}
