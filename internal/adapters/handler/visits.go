package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/services"
)

// VisitStreamer pushes a visit's state over a long-lived connection
type VisitStreamer interface {
	ServeVisit(w http.ResponseWriter, r *http.Request, visit *services.Visit)
}

// VisitHandler exposes chat visits: open, login, send, view and close
type VisitHandler struct {
	visits   *services.VisitManager
	streamer VisitStreamer
}

// NewVisitHandler creates a visit handler. streamer may be nil
func NewVisitHandler(visits *services.VisitManager, streamer VisitStreamer) *VisitHandler {
	return &VisitHandler{
		visits:   visits,
		streamer: streamer,
	}
}

// RegisterRoutes mounts the visit routes
func (h *VisitHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/visits", func(r chi.Router) {
		r.Post("/", h.OpenVisit)
		r.Route("/{visitID}", func(r chi.Router) {
			r.Get("/", h.GetVisit)
			r.Delete("/", h.CloseVisit)
			r.Post("/login", h.Login)
			r.Post("/messages", h.SendMessage)
			if h.streamer != nil {
				r.Get("/ws", h.Stream)
			}
		})
	})
}

// OpenVisitRequest is the body of POST /api/visits
type OpenVisitRequest struct {
	AgentID int64 `json:"agent_id"`
}

// VisitResponse is returned by every visit endpoint
type VisitResponse struct {
	VisitID string        `json:"visit_id"`
	AgentID int64         `json:"agent_id"`
	View    services.View `json:"view"`
}

func visitResponse(visit *services.Visit) VisitResponse {
	return VisitResponse{
		VisitID: visit.ID,
		AgentID: visit.AgentID,
		View:    visit.Controller().View(),
	}
}

// OpenVisit starts a visit and loads the agent
// POST /api/visits
// An agent load failure still creates the visit; the error is in the view
func (h *VisitHandler) OpenVisit(w http.ResponseWriter, r *http.Request) {
	var req OpenVisitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}
	if req.AgentID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse(
			domain.NewValidationError("agent_id", "Agent id is required"), "Agent id is required", nil))
		return
	}

	visit, err := h.visits.Open(r.Context(), req.AgentID)
	if err != nil {
		slog.Warn("Visit opened without agent details", "visit_id", visit.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, NewSuccessResponse(visitResponse(visit)))
}

// GetVisit returns the display projection
// GET /api/visits/{visitID}
func (h *VisitHandler) GetVisit(w http.ResponseWriter, r *http.Request) {
	visit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(visitResponse(visit)))
}

// CloseVisit discards the visit
// DELETE /api/visits/{visitID}
func (h *VisitHandler) CloseVisit(w http.ResponseWriter, r *http.Request) {
	if err := h.visits.Close(chi.URLParam(r, "visitID")); err != nil {
		writeJSON(w, statusFor(err), NewErrorResponse("Visit not found"))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(nil))
}

// LoginRequest is the customer login form
type LoginRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Login identifies the customer and gets or creates the session
// POST /api/visits/{visitID}/login
func (h *VisitHandler) Login(w http.ResponseWriter, r *http.Request) {
	visit, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	// the session is created even when the browser goes away mid-request
	ctx := context.WithoutCancel(r.Context())
	if err := visit.Controller().Login(ctx, req.Name, req.Email); err != nil {
		h.writeVisitError(w, r, visit, err, loginMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(visitResponse(visit)))
}

// SendMessageRequest is one user message
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage sends a user message and waits for the agent reply
// POST /api/visits/{visitID}/messages
func (h *VisitHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	visit, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	// the webhook deadline bounds the call, not the client connection
	ctx := context.WithoutCancel(r.Context())
	if err := visit.Controller().Send(ctx, req.Text); err != nil {
		h.writeVisitError(w, r, visit, err, sendMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(visitResponse(visit)))
}

// Stream upgrades to a websocket carrying state and typing events
// GET /api/visits/{visitID}/ws
func (h *VisitHandler) Stream(w http.ResponseWriter, r *http.Request) {
	visit, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.streamer.ServeVisit(w, r, visit)
}

func (h *VisitHandler) lookup(w http.ResponseWriter, r *http.Request) (*services.Visit, bool) {
	visit, err := h.visits.Get(chi.URLParam(r, "visitID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, NewErrorResponse("Visit not found"))
		return nil, false
	}
	return visit, true
}

// writeVisitError answers with the status and message for err
// The view is attached so the client can re-render from it
func (h *VisitHandler) writeVisitError(w http.ResponseWriter, r *http.Request, visit *services.Visit, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logRequest(r).Error("Visit request failed", "visit_id", visit.ID, "error", err)
	}
	writeJSON(w, status, errorResponse(err, message, visitResponse(visit)))
}

// loginMessage mirrors what the login form shows for err
func loginMessage(err error) string {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, services.ErrLoginNotAllowed):
		return "Already logged in"
	default:
		return domain.SessionStartFailedMsg
	}
}

func sendMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return "Message cannot be empty"
	case errors.Is(err, domain.ErrNoSession):
		return "Please start a chat session first"
	default:
		return domain.UserMessage(err, domain.SendFailedMessage)
	}
}
