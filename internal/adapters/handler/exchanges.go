package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"intake-chat/internal/core/domain"
)

// ExchangeReader lists the webhook audit trail of a session
type ExchangeReader interface {
	ListBySession(ctx context.Context, sessionID int64, limit int) ([]domain.ExchangeLog, error)
}

// ExchangeHandler exposes the exchange audit log to operators
type ExchangeHandler struct {
	reader ExchangeReader
}

// NewExchangeHandler creates an exchange handler
func NewExchangeHandler(reader ExchangeReader) *ExchangeHandler {
	return &ExchangeHandler{reader: reader}
}

// RegisterRoutes mounts the exchange routes
func (h *ExchangeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/sessions/{sessionID}/exchanges", h.ListExchanges)
}

// ListExchanges returns the webhook round trips of a session, oldest first
// GET /api/sessions/{sessionID}/exchanges?limit=100
func (h *ExchangeHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || sessionID <= 0 {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid session id"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid limit"))
			return
		}
	}

	logs, err := h.reader.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Failed to list exchanges", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse("Failed to load exchanges"))
		return
	}
	if logs == nil {
		logs = []domain.ExchangeLog{}
	}

	writeJSON(w, http.StatusOK, NewSuccessResponse(logs))
}
