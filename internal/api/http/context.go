package http

import (
	"context"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/security"
)

type contextKey string

const claimsKey contextKey = "claims"

func withClaims(ctx context.Context, claims *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the caller set by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*security.UserClaims, error) {
	claims, ok := ctx.Value(claimsKey).(*security.UserClaims)
	if !ok || claims == nil {
		return nil, domain.NewError(domain.KindNotAuthorized, "caller is not authenticated")
	}
	return claims, nil
}
