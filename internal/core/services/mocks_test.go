package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"intake-chat/internal/core/domain"
)

// ============================================================================
// Mock Gateways
// ============================================================================

// MockSessionGateway mocks SessionGateway interface
type MockSessionGateway struct {
	mock.Mock
}

func (m *MockSessionGateway) GetOrCreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Snapshot, error) {
	args := m.Called(ctx, req)
	if result := args.Get(0); result != nil {
		return result.(*domain.Snapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAgentGateway mocks AgentGateway interface
type MockAgentGateway struct {
	mock.Mock
}

func (m *MockAgentGateway) GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error) {
	args := m.Called(ctx, agentID)
	if result := args.Get(0); result != nil {
		return result.(*domain.Agent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentGateway) AppendFirstMessage(ctx context.Context, req domain.FirstMessageRequest) (*domain.Message, error) {
	args := m.Called(ctx, req)
	if result := args.Get(0); result != nil {
		return result.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockWebhookGateway mocks WebhookGateway interface
type MockWebhookGateway struct {
	mock.Mock
}

func (m *MockWebhookGateway) SendMessage(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookReply, error) {
	args := m.Called(ctx, req)
	if result := args.Get(0); result != nil {
		return result.(*domain.WebhookReply), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockAuthGateway mocks AuthGateway interface
type MockAuthGateway struct {
	mock.Mock
}

func (m *MockAuthGateway) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if result := args.Get(0); result != nil {
		return result.(*domain.AuthResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthGateway) Signup(ctx context.Context, name, email, password string) (*domain.AuthResult, error) {
	args := m.Called(ctx, name, email, password)
	if result := args.Get(0); result != nil {
		return result.(*domain.AuthResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// ============================================================================
// Mock Repositories
// ============================================================================

// MockTokenStore mocks TokenStore interface
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTokenStore) SetToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenStore) ClearToken(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockExchangeLogRepository mocks ExchangeLogRepository interface
type MockExchangeLogRepository struct {
	mock.Mock
}

func (m *MockExchangeLogRepository) SaveExchange(ctx context.Context, log *domain.ExchangeLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

// MockAgentAdminGateway mocks AgentAdminGateway interface
type MockAgentAdminGateway struct {
	mock.Mock
}

func (m *MockAgentAdminGateway) ListAgents(ctx context.Context, skip, limit int) (*domain.AgentPage, error) {
	args := m.Called(ctx, skip, limit)
	if result := args.Get(0); result != nil {
		return result.(*domain.AgentPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentAdminGateway) CreateAgent(ctx context.Context, in domain.AgentInput) (*domain.Agent, error) {
	args := m.Called(ctx, in)
	if result := args.Get(0); result != nil {
		return result.(*domain.Agent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentAdminGateway) UpdateAgent(ctx context.Context, agentID int64, in domain.AgentInput) (*domain.Agent, error) {
	args := m.Called(ctx, agentID, in)
	if result := args.Get(0); result != nil {
		return result.(*domain.Agent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAgentAdminGateway) DeleteAgent(ctx context.Context, agentID int64) error {
	return m.Called(ctx, agentID).Error(0)
}

func (m *MockAgentAdminGateway) AddChatURL(ctx context.Context, agentID int64, chatURL string) error {
	return m.Called(ctx, agentID, chatURL).Error(0)
}

func (m *MockAgentAdminGateway) DeleteChatURL(ctx context.Context, agentID int64) error {
	return m.Called(ctx, agentID).Error(0)
}
