// Package domain contains core chat entities
// Following Hexagonal Architecture: These models are infrastructure-agnostic
package domain

import (
	"encoding/json"
	"time"
)

// Customer is the end-user talking to an agent
// Created server-side on first session creation, read-only for the widget
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AgentID   int64     `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DataField is a single question/key the agent collects
type DataField struct {
	ID              int64           `json:"id"`
	SchemaID        int64           `json:"schema_id"`
	Key             string          `json:"key,omitempty"`
	Question        string          `json:"question,omitempty"`
	DataType        string          `json:"data_type"`
	Required        bool            `json:"required"`
	ValidationRules json.RawMessage `json:"validation_rules,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DataSchema groups the fields of an agent ("qa" or "json")
type DataSchema struct {
	ID        int64       `json:"id"`
	AgentID   int64       `json:"agent_id"`
	Type      string      `json:"type"`
	Fields    []DataField `json:"fields"`
	CreatedAt time.Time   `json:"created_at"`
}

// Agent is the read-only projection of an AI agent
// It deliberately carries no session list
type Agent struct {
	ID               int64        `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	SystemPrompt     string       `json:"system_prompt"`
	UserInstructions string       `json:"user_instructions"`
	WebhookURL       string       `json:"webhook_url"`
	ChatURL          string       `json:"chat_url,omitempty"`
	DataSchemas      []DataSchema `json:"data_schemas"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        *time.Time   `json:"updated_at,omitempty"`
}

// Session is one conversation between a customer and an agent
// SessionClosed is a one-way latch; EndedAt is only a soft timestamp
type Session struct {
	ID            int64      `json:"id"`
	AgentID       int64      `json:"agent_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	SessionClosed bool       `json:"session_closed"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// Message is a single chat line
// Content is stored in its raw wire form; decoding happens at render time
type Message struct {
	ID        int64     `json:"id"`
	Sender    Role      `json:"sender"`
	Receiver  Role      `json:"receiver"`
	Content   string    `json:"content"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CollectedData is an answer the agent extracted for one field
type CollectedData struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	FieldID   int64     `json:"field_id"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is everything the backend returns for a get-or-create call
type Snapshot struct {
	Customer      Customer        `json:"customer"`
	Session       Session         `json:"session"`
	Messages      []Message       `json:"messages"`
	CollectedData []CollectedData `json:"collected_data"`
	IsNewSession  bool            `json:"is_new_session"`
}

// Clone returns a deep copy so callers never share slices with the store
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.CollectedData = append([]CollectedData(nil), s.CollectedData...)
	if s.Session.EndedAt != nil {
		t := *s.Session.EndedAt
		out.Session.EndedAt = &t
	}
	if s.Session.UpdatedAt != nil {
		t := *s.Session.UpdatedAt
		out.Session.UpdatedAt = &t
	}
	return &out
}

// SessionRequest is the input of the get-or-create-session call
type SessionRequest struct {
	AgentID       int64  `json:"agent_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
}

// FirstMessageRequest persists the synthetic greeting
type FirstMessageRequest struct {
	Sender    Role   `json:"sender"`
	Receiver  Role   `json:"receiver"`
	SessionID int64  `json:"session_id"`
	Content   string `json:"content"`
}

// WebhookRequest is the full snapshot handed to the agent webhook
type WebhookRequest struct {
	Customer      Customer
	Session       Session
	Messages      []Message
	CollectedData []CollectedData
	IsNewSession  bool
	UserMessage   string
	Agent         *Agent
}

// SessionUpdate is the session facet of a webhook reply
type SessionUpdate struct {
	ID            int64
	SessionClosed bool
}

// WebhookReply holds the optional facets of a webhook response
// A nil facet means "no update"
type WebhookReply struct {
	AIMessage     *Message
	CollectedData *CollectedData
	Session       *SessionUpdate
}

// ExchangeLog is the audit trail for a webhook round trip
type ExchangeLog struct {
	ID           int64           `json:"id"`
	VisitID      string          `json:"visit_id"`
	SessionID    int64           `json:"session_id"`
	AgentID      int64           `json:"agent_id"`
	UserMessage  string          `json:"user_message"`
	ResponseJSON json.RawMessage `json:"response_json,omitempty"`
	Status       string          `json:"status"`
	ErrorLog     *string         `json:"error_log,omitempty"`
	LatencyMS    int64           `json:"latency_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExchangeStatus constants
const (
	ExchangeStatusDelivered = "delivered"
	ExchangeStatusFailed    = "failed"
)

// AuthResult is the outcome of a login/signup call
type AuthResult struct {
	Token     string
	TokenType string
	Message   string
}

// DataFieldInput is one question of an agent being created or updated
type DataFieldInput struct {
	Key             string          `json:"key"`
	Question        string          `json:"question"`
	DataType        string          `json:"data_type"`
	Required        bool            `json:"required"`
	ValidationRules json.RawMessage `json:"validation_rules,omitempty"`
}

// AgentInput is the dashboard agent form
// On update, empty strings and a nil DataFields leave the stored values alone
type AgentInput struct {
	Name             string
	Description      string
	SystemPrompt     string
	UserInstructions string
	WebhookURL       string
	Type             string
	DataFields       []DataFieldInput
}

// Pagination is the page block of list responses
type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// AgentPage is one page of the owner's agents
type AgentPage struct {
	Agents     []Agent    `json:"agents"`
	Pagination Pagination `json:"pagination"`
}
