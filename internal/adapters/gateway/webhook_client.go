package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"intake-chat/internal/adapters/dto"
	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

// ErrNoWebhookURL is returned when neither the agent nor the config names a webhook
var ErrNoWebhookURL = errors.New("no webhook url configured")

// WebhookClient posts chat snapshots to the agent's webhook
// Sends are never retried: a duplicate delivery would duplicate the user turn
type WebhookClient struct {
	httpClient  *http.Client
	fallbackURL string
	observer    RequestObserver
}

var _ ports.WebhookGateway = (*WebhookClient)(nil)

// NewWebhookClient creates a webhook client
// The per-call deadline comes from the caller's context
func NewWebhookClient(fallbackURL string, observer RequestObserver) *WebhookClient {
	if observer == nil {
		observer = nopObserver{}
	}
	return &WebhookClient{
		httpClient:  &http.Client{},
		fallbackURL: fallbackURL,
		observer:    observer,
	}
}

// SendMessage posts the snapshot and parses the optional reply facets
func (c *WebhookClient) SendMessage(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookReply, error) {
	url := c.fallbackURL
	if req.Agent != nil && req.Agent.WebhookURL != "" {
		url = req.Agent.WebhookURL
	}
	if url == "" {
		return nil, ErrNoWebhookURL
	}

	started := time.Now()
	reply, err := c.send(ctx, url, req)
	c.observer.ObserveRequest("webhook", outcomeOf(err), time.Since(started))
	return reply, err
}

func (c *WebhookClient) send(ctx context.Context, url string, req domain.WebhookRequest) (*domain.WebhookReply, error) {
	jsonData, err := json.Marshal(dto.NewWebhookPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	slog.Info("Sending message to agent webhook",
		"session_id", req.Session.ID,
		"messages", len(req.Messages),
		"text_length", len(req.UserMessage),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("Webhook request failed", "session_id", req.Session.ID, "error", err)
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}

	var parsed dto.WebhookResponse
	if _, err := decodeResponse(resp.StatusCode, body, &parsed); err != nil {
		slog.Error("Webhook returned an error",
			"status_code", resp.StatusCode,
			"session_id", req.Session.ID,
			"error", err,
		)
		return nil, err
	}

	reply := parsed.ToDomain()
	slog.Info("Webhook reply received",
		"session_id", req.Session.ID,
		"has_ai_message", reply.AIMessage != nil,
		"has_collected_data", reply.CollectedData != nil,
		"session_closed", reply.Session != nil && reply.Session.SessionClosed,
	)
	return reply, nil
}
