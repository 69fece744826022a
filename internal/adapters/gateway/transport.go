// Package gateway implements external API adapters
// Following Hexagonal Architecture: Outbound adapters for external services
package gateway

import (
	"context"
	"errors"
	"net"
	"time"

	"intake-chat/internal/core/domain"
)

// RequestObserver receives the outcome of every outbound call
type RequestObserver interface {
	ObserveRequest(target, outcome string, latency time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}

// classifyTransport wraps a failed http.Client.Do into a TransportError
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domain.TransportError{Kind: domain.TransportTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.TransportError{Kind: domain.TransportTimeout, Err: err}
	}
	return &domain.TransportError{Kind: domain.TransportNetwork, Err: err}
}

// outcomeOf labels an error for metrics
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) {
		return string(transportErr.Kind)
	}
	var gatewayErr *domain.GatewayError
	if errors.As(err, &gatewayErr) {
		if gatewayErr.Status >= 500 {
			return "server_error"
		}
		return "client_error"
	}
	return "error"
}

// sleepCtx waits d unless ctx ends first
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
