package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig assembles the HTTP surface
// Agents, Exchanges, RateLimiter, Observer and Metrics are optional; MetricsPath defaults to /metrics
type RouterConfig struct {
	Visits      *VisitHandler
	Auth        *AuthHandler
	Agents      *AgentHandler
	Ops         *OpsHandler
	Exchanges   *ExchangeHandler
	RateLimiter *RateLimiter
	Observer    HTTPObserver
	MetricsPath string
	Metrics     http.Handler
}

// NewRouter builds the chi router with the global middleware stack
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	if cfg.Observer != nil {
		r.Use(Metrics(cfg.Observer))
	}
	r.Use(chiMiddleware.Heartbeat("/health"))

	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		if cfg.Visits != nil {
			cfg.Visits.RegisterRoutes(r)
		}
		if cfg.Auth != nil {
			cfg.Auth.RegisterRoutes(r)
		}
		if cfg.Agents != nil {
			cfg.Agents.RegisterRoutes(r)
		}
		if cfg.Ops != nil {
			cfg.Ops.RegisterRoutes(r)
		}
		if cfg.Exchanges != nil {
			cfg.Exchanges.RegisterRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, NewErrorResponse("Not found"))
	})
	return r
}
