package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intake-chat/internal/core/domain"
	"intake-chat/internal/core/services"
)

// AuthHandler proxies dashboard login, signup and logout to the backend
type AuthHandler struct {
	auth *services.Authenticator
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(auth *services.Authenticator) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes mounts the auth routes
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)
		r.Get("/status", h.Status)
	})
}

// AuthLoginRequest is the dashboard login form
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the dashboard signup form
type SignupRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AcceptTerms     bool   `json:"accept_terms"`
}

// AuthResponse reports the token outcome without leaking the token
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	TokenType     string `json:"token_type,omitempty"`
}

// Login exchanges credentials for a bearer token
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AuthLoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err, "Login failed. Please try again.")
		return
	}

	resp := NewSuccessResponse(AuthResponse{Authenticated: result.Token != "", TokenType: result.TokenType})
	if result.Message != "" {
		resp.Message = result.Message
	}
	writeJSON(w, http.StatusOK, resp)
}

// Signup registers a dashboard user
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid request body"))
		return
	}

	result, err := h.auth.Signup(r.Context(), services.SignupInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		AcceptedTerms:   req.AcceptTerms,
	})
	if err != nil {
		h.writeAuthError(w, r, err, "Signup failed. Please try again.")
		return
	}

	resp := NewSuccessResponse(AuthResponse{Authenticated: result.Token != "", TokenType: result.TokenType})
	if result.Message != "" {
		resp.Message = result.Message
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Logout forgets the stored token
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		slog.Error("Failed to clear token", "error", err)
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(domain.DefaultErrorMessage))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(AuthResponse{Authenticated: false}))
}

// Status reports whether a token is stored
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.Authenticated(r.Context())
	if err != nil {
		slog.Error("Failed to read token", "error", err)
		writeJSON(w, http.StatusInternalServerError, NewErrorResponse(domain.DefaultErrorMessage))
		return
	}
	writeJSON(w, http.StatusOK, NewSuccessResponse(AuthResponse{Authenticated: ok}))
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	h.auth.HandleUnauthorized(r.Context(), err)

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logRequest(r).Error("Auth request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse(err, domain.UserMessage(err, fallback), nil))
}
