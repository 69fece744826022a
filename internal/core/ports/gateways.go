// Package ports defines interfaces for dependency inversion
// Following Hexagonal Architecture: Core defines contracts, Adapters implement them
package ports

import (
	"context"

	"intake-chat/internal/core/domain"
)

// AuthGateway performs dashboard user authentication against the backend
type AuthGateway interface {
	// Login exchanges credentials for a bearer token
	Login(ctx context.Context, email, password string) (*domain.AuthResult, error)

	// Signup registers a new dashboard user
	Signup(ctx context.Context, name, email, password string) (*domain.AuthResult, error)
}

// SessionGateway resolves the chat session for a customer
type SessionGateway interface {
	// GetOrCreateSession returns the existing session for the customer
	// or creates customer + session server-side
	GetOrCreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Snapshot, error)
}

// AgentGateway reads agents and persists the synthetic greeting
type AgentGateway interface {
	// GetAgent returns the agent projection (no session list)
	GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error)

	// AppendFirstMessage persists a message and returns the backend record
	AppendFirstMessage(ctx context.Context, req domain.FirstMessageRequest) (*domain.Message, error)
}

// AgentAdminGateway manages the dashboard user's agents
// Calls run as the bearer token of the caller
type AgentAdminGateway interface {
	// ListAgents returns one page of agents, newest first
	ListAgents(ctx context.Context, skip, limit int) (*domain.AgentPage, error)

	// CreateAgent creates an agent with its data schema and fields
	CreateAgent(ctx context.Context, in domain.AgentInput) (*domain.Agent, error)

	// UpdateAgent changes the fields set in in
	UpdateAgent(ctx context.Context, agentID int64, in domain.AgentInput) (*domain.Agent, error)

	// DeleteAgent removes an agent
	DeleteAgent(ctx context.Context, agentID int64) error

	// AddChatURL publishes the agent's public chat link
	AddChatURL(ctx context.Context, agentID int64, chatURL string) error

	// DeleteChatURL withdraws the public chat link
	DeleteChatURL(ctx context.Context, agentID int64) error
}

// WebhookGateway performs the agent round trip for a user message
type WebhookGateway interface {
	// SendMessage posts the full snapshot and returns the optional reply facets
	SendMessage(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookReply, error)
}
