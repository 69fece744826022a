package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

// Authenticator handles dashboard login, signup and logout
// The bearer token it stores is independent of any chat visit
type Authenticator struct {
	gateway ports.AuthGateway
	tokens  ports.TokenStore
	logger  *slog.Logger
}

// NewAuthenticator creates an authenticator backed by the given token store
func NewAuthenticator(gateway ports.AuthGateway, tokens ports.TokenStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		gateway: gateway,
		tokens:  tokens,
		logger:  logger,
	}
}

// Login validates credentials locally, then exchanges them for a token
func (a *Authenticator) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	email = strings.TrimSpace(email)
	if err := ValidateLogin(email, password); err != nil {
		return nil, err
	}

	result, err := a.gateway.Login(ctx, email, password)
	if err != nil {
		a.logger.Warn("Login failed", "email", email, "error", err)
		return nil, fmt.Errorf("login: %w", err)
	}

	if result.Token != "" {
		if err := a.tokens.SetToken(ctx, result.Token); err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
	}

	a.logger.Info("User logged in", "email", email)
	return result, nil
}

// Signup validates the form locally, then registers the user
// A token returned by the backend is stored like a login
func (a *Authenticator) Signup(ctx context.Context, in SignupInput) (*domain.AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateSignup(in); err != nil {
		return nil, err
	}

	result, err := a.gateway.Signup(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		a.logger.Warn("Signup failed", "email", in.Email, "error", err)
		return nil, fmt.Errorf("signup: %w", err)
	}

	if result.Token != "" {
		if err := a.tokens.SetToken(ctx, result.Token); err != nil {
			return nil, fmt.Errorf("store token: %w", err)
		}
	}

	a.logger.Info("User signed up", "email", in.Email)
	return result, nil
}

// Logout forgets the stored token
func (a *Authenticator) Logout(ctx context.Context) error {
	if err := a.tokens.ClearToken(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// Authenticated reports whether a token is stored
func (a *Authenticator) Authenticated(ctx context.Context) (bool, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return false, err
	}
	return token != "", nil
}

// HandleUnauthorized clears the token when err is a 401
// Returns true when the caller should send the user back to login
func (a *Authenticator) HandleUnauthorized(ctx context.Context, err error) bool {
	if !errors.Is(err, domain.ErrUnauthorized) {
		return false
	}
	if clearErr := a.tokens.ClearToken(ctx); clearErr != nil {
		a.logger.Error("Failed to clear token after 401", "error", clearErr)
	}
	return true
}
