package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"intake-chat/internal/core/domain"
)

// MockBackend implements every backend-facing port
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthResult), args.Error(1)
}

func (m *MockBackend) Signup(ctx context.Context, name, email, password string) (*domain.AuthResult, error) {
	args := m.Called(ctx, name, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AuthResult), args.Error(1)
}

func (m *MockBackend) GetOrCreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Snapshot, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockBackend) GetAgent(ctx context.Context, agentID int64) (*domain.Agent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockBackend) AppendFirstMessage(ctx context.Context, req domain.FirstMessageRequest) (*domain.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockBackend) SendMessage(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookReply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookReply), args.Error(1)
}

// MockPinger is a dependency health check
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockExchangeReader is the exchange audit log
type MockExchangeReader struct {
	mock.Mock
}

func (m *MockExchangeReader) ListBySession(ctx context.Context, sessionID int64, limit int) ([]domain.ExchangeLog, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExchangeLog), args.Error(1)
}

func (m *MockBackend) ListAgents(ctx context.Context, skip, limit int) (*domain.AgentPage, error) {
	args := m.Called(ctx, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AgentPage), args.Error(1)
}

func (m *MockBackend) CreateAgent(ctx context.Context, in domain.AgentInput) (*domain.Agent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockBackend) UpdateAgent(ctx context.Context, agentID int64, in domain.AgentInput) (*domain.Agent, error) {
	args := m.Called(ctx, agentID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Agent), args.Error(1)
}

func (m *MockBackend) DeleteAgent(ctx context.Context, agentID int64) error {
	return m.Called(ctx, agentID).Error(0)
}

func (m *MockBackend) AddChatURL(ctx context.Context, agentID int64, chatURL string) error {
	return m.Called(ctx, agentID, chatURL).Error(0)
}

func (m *MockBackend) DeleteChatURL(ctx context.Context, agentID int64) error {
	return m.Called(ctx, agentID).Error(0)
}
