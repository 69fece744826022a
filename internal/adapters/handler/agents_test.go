package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
	"intake-chat/internal/core/services"
)

func createAgentRouter(backend *MockBackend) chi.Router {
	return NewRouter(RouterConfig{
		Agents: NewAgentHandler(services.NewAgentAdmin(backend, nil)),
	})
}

// withToken matches a context carrying the forwarded bearer token
func withToken(token string) interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool {
		got, ok := ports.BearerToken(ctx)
		return ok && got == token
	})
}

// TestListAgents_ForwardsBearer tests paging and token forwarding
func TestListAgents_ForwardsBearer(t *testing.T) {
	backend := new(MockBackend)
	router := createAgentRouter(backend)
	backend.On("ListAgents", withToken("dash-tok"), 20, 10).Return(&domain.AgentPage{
		Agents:     []domain.Agent{{ID: 1, Name: "Support"}},
		Pagination: domain.Pagination{Total: 21, Page: 3, PageSize: 10},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/agents?skip=20&limit=10", nil)
	req.Header.Set("Authorization", "Bearer dash-tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Support"`)
	assert.Contains(t, rec.Body.String(), `"total":21`)
	backend.AssertExpectations(t)

	rec = doJSON(t, router, http.MethodGet, "/api/agents?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestCreateAgent tests validation errors and a successful create
func TestCreateAgent(t *testing.T) {
	backend := new(MockBackend)
	router := createAgentRouter(backend)

	rec := doJSON(t, router, http.MethodPost, "/api/agents", AgentRequest{Name: "Bot"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"description":["Description is required"]`)
	backend.AssertNotCalled(t, "CreateAgent", mock.Anything, mock.Anything)

	backend.On("CreateAgent", mock.Anything, mock.Anything).Return(&domain.Agent{ID: 9, Name: "Bot"}, nil)
	rec = doJSON(t, router, http.MethodPost, "/api/agents", AgentRequest{
		Name:             "Bot",
		Description:      "Qualifies leads",
		SystemPrompt:     "Be brief",
		UserInstructions: "Ask all",
		DataFields:       []domain.DataFieldInput{{Question: "Budget?"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Agent created successfully"`)
	assert.Contains(t, rec.Body.String(), `"id":9`)
}

// TestAgentRoutes_Errors tests status mapping for backend failures
func TestAgentRoutes_Errors(t *testing.T) {
	backend := new(MockBackend)
	router := createAgentRouter(backend)
	backend.On("DeleteAgent", mock.Anything, int64(9)).Return(&domain.GatewayError{Status: http.StatusNotFound, Message: "Agent not found"})
	backend.On("DeleteChatURL", mock.Anything, int64(9)).Return(&domain.GatewayError{Status: http.StatusUnauthorized, Message: "Not authenticated"})

	rec := doJSON(t, router, http.MethodDelete, "/api/agents/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Agent not found")

	rec = doJSON(t, router, http.MethodDelete, "/api/agents/9/chat-url", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/agents/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestAgentChatURLAndUpdate tests the chat link and a partial update
func TestAgentChatURLAndUpdate(t *testing.T) {
	backend := new(MockBackend)
	router := createAgentRouter(backend)
	backend.On("AddChatURL", mock.Anything, int64(9), "https://chat.example.com/9").Return(nil)
	backend.On("UpdateAgent", mock.Anything, int64(9), domain.AgentInput{Name: "Renamed"}).
		Return(&domain.Agent{ID: 9, Name: "Renamed"}, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/agents/9/chat-url", ChatURLRequest{ChatURL: "https://chat.example.com/9"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/agents/9/chat-url", ChatURLRequest{ChatURL: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := bytes.NewBufferString(`{"name":"Renamed"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/agents/9", body)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Renamed"`)
	backend.AssertExpectations(t)
}
