package ports

import "context"

type bearerTokenKey struct{}

// WithBearerToken attaches the caller's token to ctx
// Gateways prefer it over the TokenStore
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// BearerToken returns the token attached by WithBearerToken
func BearerToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(bearerTokenKey{}).(string)
	return token, ok && token != ""
}
