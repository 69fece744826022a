package ports

import (
	"context"

	"intake-chat/internal/core/domain"
)

// TokenStore keeps the bearer token of the surrounding app
// It outlives the per-visit Session Store
type TokenStore interface {
	// Token returns the stored token, empty when none is stored
	Token(ctx context.Context) (string, error)

	// SetToken persists a freshly issued token
	SetToken(ctx context.Context, token string) error

	// ClearToken forgets the token (logout or 401)
	ClearToken(ctx context.Context) error
}

// ExchangeLogRepository persists the audit trail of webhook round trips
type ExchangeLogRepository interface {
	// SaveExchange records one webhook exchange
	SaveExchange(ctx context.Context, log *domain.ExchangeLog) error
}
