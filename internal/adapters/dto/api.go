// Package dto contains data transfer objects for external APIs
// Separating DTOs from handlers prevents import cycles
package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"intake-chat/internal/core/domain"
)

// Envelope is the standard backend response wrapper
// Ref: backend core/responses
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors,omitempty"`
	Meta    json.RawMessage `json:"meta,omitempty"`
}

// IsEnvelope reports whether a body looks like an envelope (has "success")
func IsEnvelope(body []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return false
	}
	_, ok := keys["success"]
	return ok
}

// FieldErrors accepts both {"field": ["msg"]} and ["msg"] shapes
// A bare list is reported under the "errors" key
func (e *Envelope) FieldErrors() map[string][]string {
	raw := bytes.TrimSpace(e.Errors)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var byField map[string][]string
	if err := json.Unmarshal(raw, &byField); err == nil {
		return byField
	}

	// some endpoints send a single string per field
	var single map[string]string
	if err := json.Unmarshal(raw, &single); err == nil {
		out := make(map[string][]string, len(single))
		for k, v := range single {
			out[k] = []string{v}
		}
		return out
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return map[string][]string{"errors": list}
	}
	return nil
}

// GatewayError converts a failure envelope into the domain error
func (e *Envelope) GatewayError(status int) *domain.GatewayError {
	return &domain.GatewayError{
		Status:      status,
		Message:     e.Message,
		FieldErrors: e.FieldErrors(),
	}
}

// ============================================================================
// Auth
// ============================================================================

// TokenResponse is the data of POST /api/auth/login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SignupRequest is the body of POST /api/auth/signup
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the user record returned by signup
type UserResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// present when the backend logs the new user in straight away
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
}

// ============================================================================
// Chat
// ============================================================================

// MessageDTO is a chat message as the backend serializes it
type MessageDTO struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ToDomain normalizes roles onto the chat vocabulary
func (m MessageDTO) ToDomain() domain.Message {
	return domain.Message{
		ID:        m.ID,
		Sender:    domain.NormalizeRole(m.Sender),
		Receiver:  domain.NormalizeRole(m.Receiver),
		Content:   m.Content,
		SessionID: m.SessionID,
		CreatedAt: m.CreatedAt,
	}
}

// SessionSnapshotResponse is the result of get-or-create-session
type SessionSnapshotResponse struct {
	Customer      domain.Customer        `json:"customer"`
	Session       domain.Session         `json:"session"`
	Messages      []MessageDTO           `json:"messages"`
	CollectedData []domain.CollectedData `json:"collected_data"`
	IsNewSession  bool                   `json:"is_new_session"`
}

// ToDomain builds the store snapshot
func (r *SessionSnapshotResponse) ToDomain() *domain.Snapshot {
	msgs := make([]domain.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, m.ToDomain())
	}
	return &domain.Snapshot{
		Customer:      r.Customer,
		Session:       r.Session,
		Messages:      msgs,
		CollectedData: r.CollectedData,
		IsNewSession:  r.IsNewSession,
	}
}

// FirstMessageRequest is the body of append-first-message
type FirstMessageRequest struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	SessionID int64  `json:"session_id"`
	Content   string `json:"content"`
}

// FirstMessageResponse wraps the persisted greeting
type FirstMessageResponse struct {
	Message MessageDTO `json:"message"`
}

// ============================================================================
// Agent webhook
// ============================================================================

// WebhookMessage is a message in webhook vocabulary (assistant/user)
type WebhookMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Content   string    `json:"content"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookPayload is the full snapshot posted to the agent webhook
type WebhookPayload struct {
	Customer      domain.Customer        `json:"customer"`
	Session       domain.Session         `json:"session"`
	Messages      []WebhookMessage       `json:"messages"`
	CollectedData []domain.CollectedData `json:"collected_data"`
	IsNewSession  bool                   `json:"is_new_session"`
	UserMessage   string                 `json:"user_message"`
	Agent         *domain.Agent          `json:"agent,omitempty"`
}

// NewWebhookPayload converts roles to webhook vocabulary
func NewWebhookPayload(req domain.WebhookRequest) WebhookPayload {
	msgs := make([]WebhookMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, WebhookMessage{
			ID:        m.ID,
			Sender:    m.Sender.Wire(),
			Receiver:  m.Receiver.Wire(),
			Content:   m.Content,
			SessionID: m.SessionID,
			CreatedAt: m.CreatedAt,
		})
	}
	collected := req.CollectedData
	if collected == nil {
		collected = []domain.CollectedData{}
	}
	return WebhookPayload{
		Customer:      req.Customer,
		Session:       req.Session,
		Messages:      msgs,
		CollectedData: collected,
		IsNewSession:  req.IsNewSession,
		UserMessage:   req.UserMessage,
		Agent:         req.Agent,
	}
}

// WebhookSession is the session facet of a webhook response
type WebhookSession struct {
	ID            int64 `json:"id"`
	SessionClosed bool  `json:"session_closed"`
}

// WebhookResponse holds the optional facets; absent facets stay nil
type WebhookResponse struct {
	AIMessage     *MessageDTO           `json:"ai_message"`
	CollectedData *domain.CollectedData `json:"collected_data"`
	Session       *WebhookSession       `json:"session"`
}

// ToDomain converts to the reply the controller applies
func (r *WebhookResponse) ToDomain() *domain.WebhookReply {
	reply := &domain.WebhookReply{CollectedData: r.CollectedData}
	if r.AIMessage != nil {
		msg := r.AIMessage.ToDomain()
		reply.AIMessage = &msg
	}
	if r.Session != nil {
		reply.Session = &domain.SessionUpdate{ID: r.Session.ID, SessionClosed: r.Session.SessionClosed}
	}
	return reply
}

// ============================================================================
// Agents
// ============================================================================

// AgentRequest is the body of create-agent and of PUT /api/agents/{id}
// omitempty keeps unset fields out of partial updates
type AgentRequest struct {
	Name             string                  `json:"name,omitempty"`
	Description      string                  `json:"description,omitempty"`
	SystemPrompt     string                  `json:"system_prompt,omitempty"`
	UserInstructions string                  `json:"user_instructions,omitempty"`
	WebhookURL       string                  `json:"webhook_url,omitempty"`
	Type             string                  `json:"type,omitempty"`
	AgentDataFields  []domain.DataFieldInput `json:"agent_data_fields,omitempty"`
}

// NewAgentRequest copies the form; empty validation rules are sent as {}
func NewAgentRequest(in domain.AgentInput) AgentRequest {
	var fields []domain.DataFieldInput
	if in.DataFields != nil {
		fields = make([]domain.DataFieldInput, len(in.DataFields))
		for i, f := range in.DataFields {
			if len(f.ValidationRules) == 0 {
				f.ValidationRules = json.RawMessage(`{}`)
			}
			fields[i] = f
		}
	}
	return AgentRequest{
		Name:             in.Name,
		Description:      in.Description,
		SystemPrompt:     in.SystemPrompt,
		UserInstructions: in.UserInstructions,
		WebhookURL:       in.WebhookURL,
		Type:             in.Type,
		AgentDataFields:  fields,
	}
}

// ChatURLRequest is the body of POST /api/agents/{id}/add-chat-url
type ChatURLRequest struct {
	ChatURL string `json:"chat_url"`
}

// PageMeta is the meta block of paginated envelopes
type PageMeta struct {
	Pagination domain.Pagination `json:"pagination"`
}

// AgentList decodes a paginated agent list
// data fills Agents, the envelope meta fills Meta
type AgentList struct {
	Agents []domain.Agent
	Meta   PageMeta
}

// UnmarshalJSON reads the data array
func (l *AgentList) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &l.Agents)
}

// MetaTarget is where the envelope meta is decoded
func (l *AgentList) MetaTarget() any {
	return &l.Meta
}
