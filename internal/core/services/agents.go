package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
)

const (
	defaultAgentPageSize = 100
	maxAgentPageSize     = 100
)

// AgentAdmin manages the dashboard user's agents
// Forms are validated locally; the backend owns storage and ownership checks
type AgentAdmin struct {
	gateway ports.AgentAdminGateway
	logger  *slog.Logger
}

// NewAgentAdmin creates the agent management service
func NewAgentAdmin(gateway ports.AgentAdminGateway, logger *slog.Logger) *AgentAdmin {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentAdmin{
		gateway: gateway,
		logger:  logger.With("component", "agent_admin"),
	}
}

// List returns one page of agents; limit is clamped to 1..100
func (a *AgentAdmin) List(ctx context.Context, skip, limit int) (*domain.AgentPage, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultAgentPageSize
	}
	limit = min(limit, maxAgentPageSize)

	page, err := a.gateway.ListAgents(ctx, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return page, nil
}

// Create validates the form and creates the agent
func (a *AgentAdmin) Create(ctx context.Context, in domain.AgentInput) (*domain.Agent, error) {
	in = NormalizeAgentInput(in)
	if in.Type == "" {
		in.Type = defaultAgentType
	}
	if err := ValidateAgent(in); err != nil {
		return nil, err
	}

	agent, err := a.gateway.CreateAgent(ctx, in)
	if err != nil {
		a.logger.Warn("Create agent failed", "name", in.Name, "error", err)
		return nil, fmt.Errorf("create agent: %w", err)
	}

	a.logger.Info("Agent created", "agent_id", agent.ID, "fields", len(in.DataFields))
	return agent, nil
}

// Update applies a partial update
func (a *AgentAdmin) Update(ctx context.Context, agentID int64, in domain.AgentInput) (*domain.Agent, error) {
	if agentID <= 0 {
		return nil, domain.NewValidationError("agent_id", "Invalid agent id")
	}
	in = NormalizeAgentInput(in)
	if err := ValidateAgentUpdate(in); err != nil {
		return nil, err
	}

	agent, err := a.gateway.UpdateAgent(ctx, agentID, in)
	if err != nil {
		a.logger.Warn("Update agent failed", "agent_id", agentID, "error", err)
		return nil, fmt.Errorf("update agent: %w", err)
	}

	a.logger.Info("Agent updated", "agent_id", agentID)
	return agent, nil
}

// Delete removes an agent
func (a *AgentAdmin) Delete(ctx context.Context, agentID int64) error {
	if agentID <= 0 {
		return domain.NewValidationError("agent_id", "Invalid agent id")
	}
	if err := a.gateway.DeleteAgent(ctx, agentID); err != nil {
		a.logger.Warn("Delete agent failed", "agent_id", agentID, "error", err)
		return fmt.Errorf("delete agent: %w", err)
	}

	a.logger.Info("Agent deleted", "agent_id", agentID)
	return nil
}

// AddChatURL publishes the agent's chat link
func (a *AgentAdmin) AddChatURL(ctx context.Context, agentID int64, chatURL string) error {
	if agentID <= 0 {
		return domain.NewValidationError("agent_id", "Invalid agent id")
	}
	chatURL = strings.TrimSpace(chatURL)
	if err := ValidateChatURL(chatURL); err != nil {
		return err
	}
	if err := a.gateway.AddChatURL(ctx, agentID, chatURL); err != nil {
		return fmt.Errorf("add chat url: %w", err)
	}

	a.logger.Info("Chat URL added", "agent_id", agentID, "chat_url", chatURL)
	return nil
}

// DeleteChatURL withdraws the agent's chat link
func (a *AgentAdmin) DeleteChatURL(ctx context.Context, agentID int64) error {
	if agentID <= 0 {
		return domain.NewValidationError("agent_id", "Invalid agent id")
	}
	if err := a.gateway.DeleteChatURL(ctx, agentID); err != nil {
		return fmt.Errorf("delete chat url: %w", err)
	}

	a.logger.Info("Chat URL removed", "agent_id", agentID)
	return nil
}
