package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/ports"
	"intake-chat/internal/core/services"
)

// AgentHandler exposes dashboard agent management
// Requests carrying their own bearer token are forwarded with it
type AgentHandler struct {
	admin *services.AgentAdmin
}

// NewAgentHandler creates an agent handler
func NewAgentHandler(admin *services.AgentAdmin) *AgentHandler {
	return &AgentHandler{admin: admin}
}

// RegisterRoutes mounts the agent routes
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Use(forwardBearer)
		r.Get("/", h.ListAgents)
		r.Post("/", h.CreateAgent)
		r.Route("/{agentID}", func(r chi.Router) {
			r.Put("/", h.UpdateAgent)
			r.Delete("/", h.DeleteAgent)
			r.Post("/chat-url", h.AddChatURL)
			r.Delete("/chat-url", h.DeleteChatURL)
		})
	})
}

// AgentRequest is the agent form, shared by create and update
// On update, omitted fields are left unchanged
type AgentRequest struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description"`
	SystemPrompt     string                  `json:"system_prompt"`
	UserInstructions string                  `json:"user_instructions"`
	WebhookURL       string                  `json:"webhook_url"`
	Type             string                  `json:"type"`
	DataFields       []domain.DataFieldInput `json:"agent_data_fields"`
}

func (req AgentRequest) input() domain.AgentInput {
	return domain.AgentInput{
		Name:             req.Name,
		Description:      req.Description,
		SystemPrompt:     req.SystemPrompt,
		UserInstructions: req.UserInstructions,
		WebhookURL:       req.WebhookURL,
		Type:             req.Type,
		DataFields:       req.DataFields,
	}
}

// ChatURLRequest is the body of POST /api/agents/{agentID}/chat-url
type ChatURLRequest struct {
	ChatURL string `json:"chat_url"`
}

// ListAgents returns one page of agents
// GET /api/agents?skip=0&limit=100
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid skip"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid limit"))
		return
	}

	page, err := h.admin.List(r.Context(), skip, limit)
	if err != nil {
		writeAgentError(w, r, err, "Failed to load agents")
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(page))
}

// CreateAgent creates an agent
// POST /api/agents
func (h *AgentHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	agent, err := h.admin.Create(r.Context(), req.input())
	if err != nil {
		writeAgentError(w, r, err, "Failed to create agent")
		return
	}

	resp := NewSuccessResponse(agent)
	resp.Message = "Agent created successfully"
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateAgent applies a partial update
// PUT /api/agents/{agentID}
func (h *AgentHandler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	var req AgentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	agent, err := h.admin.Update(r.Context(), agentID, req.input())
	if err != nil {
		writeAgentError(w, r, err, "Failed to update agent")
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(agent))
}

// DeleteAgent removes an agent
// DELETE /api/agents/{agentID}
func (h *AgentHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	if err := h.admin.Delete(r.Context(), agentID); err != nil {
		writeAgentError(w, r, err, "Failed to delete agent")
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

// AddChatURL publishes the agent's chat link
// POST /api/agents/{agentID}/chat-url
func (h *AgentHandler) AddChatURL(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	var req ChatURLRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	if err := h.admin.AddChatURL(r.Context(), agentID, req.ChatURL); err != nil {
		writeAgentError(w, r, err, "Failed to add chat URL")
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

// DeleteChatURL withdraws the agent's chat link
// DELETE /api/agents/{agentID}/chat-url
func (h *AgentHandler) DeleteChatURL(w http.ResponseWriter, r *http.Request) {
	agentID, ok := agentIDParam(w, r)
	if !ok {
		return
	}
	if err := h.admin.DeleteChatURL(r.Context(), agentID); err != nil {
		writeAgentError(w, r, err, "Failed to remove chat URL")
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

// forwardBearer hands the request's own bearer token to the gateways
func forwardBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
			if token := strings.TrimSpace(header[len("bearer "):]); token != "" {
				r = r.WithContext(ports.WithBearerToken(r.Context(), token))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func agentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid agent id"))
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter; absent is 0
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeAgentError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logRequest(r).Error("Agent request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse(err, domain.UserMessage(err, fallback), nil))
}
