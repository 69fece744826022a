package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"intake-chat/internal/adapters/dto"
	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

// APIClient talks to the chat backend REST API
// It implements the Auth, Session, Agent and AgentAdmin gateways
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     ports.TokenStore
	observer   RequestObserver
	maxRetries int
	backoff    time.Duration
}

var (
	_ ports.AuthGateway    = (*APIClient)(nil)
	_ ports.SessionGateway = (*APIClient)(nil)
	_ ports.AgentGateway   = (*APIClient)(nil)

	_ ports.AgentAdminGateway = (*APIClient)(nil)
)

// APIClientConfig configures an APIClient
type APIClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Observer   RequestObserver
}

// NewAPIClient creates a backend client; tokens may be nil for anonymous use
func NewAPIClient(cfg APIClientConfig, tokens ports.TokenStore) *APIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		observer:   cfg.Observer,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

// request is one outbound call; body is re-sent on every attempt
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

// Login posts multipart credentials and returns the bearer token
func (c *APIClient) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("email", email); err != nil {
		return nil, fmt.Errorf("failed to build login form: %w", err)
	}
	if err := form.WriteField("password", password); err != nil {
		return nil, fmt.Errorf("failed to build login form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build login form: %w", err)
	}

	var token dto.TokenResponse
	msg, err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        buf.Bytes(),
		contentType: form.FormDataContentType(),
	}, &token)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResult{Token: token.AccessToken, TokenType: token.TokenType, Message: msg}, nil
}

// Signup registers a dashboard user
func (c *APIClient) Signup(ctx context.Context, name, email, password string) (*domain.AuthResult, error) {
	var user dto.UserResponse
	msg, err := c.callJSON(ctx, http.MethodPost, "/api/auth/signup", dto.SignupRequest{
		Name:     name,
		Email:    email,
		Password: password,
	}, &user)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResult{Token: user.AccessToken, TokenType: user.TokenType, Message: msg}, nil
}

// GetAgent fetches the agent projection
func (c *APIClient) GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error) {
	var agent domain.Agent
	if _, err := c.callJSON(ctx, http.MethodGet, fmt.Sprintf("/api/agents/%d", agentID), nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// GetOrCreateSession resolves the customer's session snapshot
func (c *APIClient) GetOrCreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Snapshot, error) {
	var snapshot dto.SessionSnapshotResponse
	if _, err := c.callJSON(ctx, http.MethodPost, "/api/chat/get-or-create-session", req, &snapshot); err != nil {
		return nil, err
	}
	return snapshot.ToDomain(), nil
}

// AppendFirstMessage persists the greeting and returns the backend record
// The record may come wrapped in {"message": ...} or bare
func (c *APIClient) AppendFirstMessage(ctx context.Context, req domain.FirstMessageRequest) (*domain.Message, error) {
	var raw json.RawMessage
	if _, err := c.callJSON(ctx, http.MethodPost, "/api/chat/append-first-message", dto.FirstMessageRequest{
		Sender:    string(req.Sender),
		Receiver:  string(req.Receiver),
		SessionID: req.SessionID,
		Content:   req.Content,
	}, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		Message *dto.MessageDTO `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Message != nil {
		msg := wrapped.Message.ToDomain()
		return &msg, nil
	}

	var bare dto.MessageDTO
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("failed to parse first message: %w", err)
	}
	msg := bare.ToDomain()
	return &msg, nil
}

// ListAgents fetches one page of the caller's agents
// GET /api/agents?skip=&limit=
func (c *APIClient) ListAgents(ctx context.Context, skip, limit int) (*domain.AgentPage, error) {
	query := url.Values{}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))

	var list dto.AgentList
	if _, err := c.callJSON(ctx, http.MethodGet, "/api/agents?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}

	agents := list.Agents
	if agents == nil {
		agents = []domain.Agent{}
	}
	return &domain.AgentPage{Agents: agents, Pagination: list.Meta.Pagination}, nil
}

// CreateAgent creates an agent with its schema and fields
func (c *APIClient) CreateAgent(ctx context.Context, in domain.AgentInput) (*domain.Agent, error) {
	var agent domain.Agent
	if _, err := c.callJSON(ctx, http.MethodPost, "/api/agents/create-agent", dto.NewAgentRequest(in), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// UpdateAgent sends a partial update
func (c *APIClient) UpdateAgent(ctx context.Context, agentID int64, in domain.AgentInput) (*domain.Agent, error) {
	var agent domain.Agent
	if _, err := c.callJSON(ctx, http.MethodPut, fmt.Sprintf("/api/agents/%d", agentID), dto.NewAgentRequest(in), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// DeleteAgent removes an agent
func (c *APIClient) DeleteAgent(ctx context.Context, agentID int64) error {
	_, err := c.callJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/agents/%d", agentID), nil, nil)
	return err
}

// AddChatURL publishes the agent's chat link
func (c *APIClient) AddChatURL(ctx context.Context, agentID int64, chatURL string) error {
	_, err := c.callJSON(ctx, http.MethodPost, fmt.Sprintf("/api/agents/%d/add-chat-url", agentID), dto.ChatURLRequest{ChatURL: chatURL}, nil)
	return err
}

// DeleteChatURL withdraws the agent's chat link
func (c *APIClient) DeleteChatURL(ctx context.Context, agentID int64) error {
	_, err := c.callJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/agents/%d/chat-url", agentID), nil, nil)
	return err
}

// callJSON marshals in (when non-nil) and performs the call
func (c *APIClient) callJSON(ctx context.Context, method, path string, in, out any) (string, error) {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}
		body = data
	}
	return c.call(ctx, request{method: method, path: path, body: body, contentType: "application/json"}, out)
}

// call performs the request with retries on transport errors only
// Returns the envelope message on success
func (c *APIClient) call(ctx context.Context, r request, out any) (string, error) {
	started := time.Now()
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		msg, err := c.attempt(ctx, r, out, attempt)
		if err == nil {
			c.observer.ObserveRequest(r.path, "ok", time.Since(started))
			return msg, nil
		}
		lastErr = err

		var transportErr *domain.TransportError
		if !errors.As(err, &transportErr) || ctx.Err() != nil {
			break
		}

		if attempt < c.maxRetries {
			backoff := time.Duration(attempt) * c.backoff
			slog.Warn("Retrying backend API call",
				"path", r.path,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"backoff_ms", backoff.Milliseconds(),
				"error", err,
			)
			if err := sleepCtx(ctx, backoff); err != nil {
				break
			}
		}
	}

	c.observer.ObserveRequest(r.path, outcomeOf(lastErr), time.Since(started))
	return "", lastErr
}

// attempt performs a single round trip
func (c *APIClient) attempt(ctx context.Context, r request, out any, attempt int) (string, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	if token, ok := ports.BearerToken(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			slog.Warn("Failed to read auth token", "error", err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	slog.Debug("Calling backend API", "method", r.method, "path", r.path, "attempt", attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Backend API request failed", "path", r.path, "error", err, "attempt", attempt)
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}

	msg, err := decodeResponse(resp.StatusCode, data, out)
	if err != nil {
		// a forwarded token belongs to the caller, the stored one is left alone
		_, forwarded := ports.BearerToken(ctx)
		if errors.Is(err, domain.ErrUnauthorized) && c.tokens != nil && !forwarded {
			if clearErr := c.tokens.ClearToken(ctx); clearErr != nil {
				slog.Error("Failed to clear token after 401", "error", clearErr)
			}
		}
		slog.Warn("Backend API error", "path", r.path, "status_code", resp.StatusCode, "error", err)
		return "", err
	}
	return msg, nil
}

// metaTarget is implemented by outputs that also want the envelope meta
type metaTarget interface {
	MetaTarget() any
}

// decodeResponse accepts both enveloped and bare bodies
func decodeResponse(status int, body []byte, out any) (string, error) {
	if dto.IsEnvelope(body) {
		var env dto.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", fmt.Errorf("failed to parse envelope: %w", err)
		}
		if !env.Success || status >= http.StatusBadRequest {
			if status < http.StatusBadRequest {
				status = http.StatusBadRequest
			}
			return "", env.GatewayError(status)
		}
		if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return "", fmt.Errorf("failed to parse response data: %w", err)
			}
		}
		if target, ok := out.(metaTarget); ok && len(env.Meta) > 0 {
			if err := json.Unmarshal(env.Meta, target.MetaTarget()); err != nil {
				return "", fmt.Errorf("failed to parse response meta: %w", err)
			}
		}
		return env.Message, nil
	}

	if status >= http.StatusBadRequest {
		return "", bareError(status, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return "", nil
}

// bareError reads a non-envelope error body such as {"detail": ...}
func bareError(status int, body []byte) *domain.GatewayError {
	gwErr := &domain.GatewayError{Status: status}

	var detail struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err != nil || len(detail.Detail) == 0 {
		return gwErr
	}

	var text string
	if err := json.Unmarshal(detail.Detail, &text); err == nil {
		gwErr.Message = text
		return gwErr
	}

	// validation errors: [{"loc": ["body", "email"], "msg": "..."}]
	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(detail.Detail, &items); err == nil && len(items) > 0 {
		gwErr.FieldErrors = make(map[string][]string)
		for _, item := range items {
			field := "request"
			if len(item.Loc) > 0 {
				field = fmt.Sprint(item.Loc[len(item.Loc)-1])
			}
			gwErr.FieldErrors[field] = append(gwErr.FieldErrors[field], item.Msg)
		}
	}
	return gwErr
}
