package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// ============================================================================
// Rate limiting
// ============================================================================

// RateLimiterOptions configures the per-client rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*http.Request) string
	// OnLimited is called for every rejected request
	OnLimited func()
}

// DefaultRateLimiterOptions returns 5 rps with a burst of 10, keyed by client IP
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        clientIP,
	}
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client key
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*rateClient
}

// NewRateLimiter creates a rate limiter. Zero fields take the defaults
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	def := DefaultRateLimiterOptions()
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.ExpiryDuration <= 0 {
		opts.ExpiryDuration = def.ExpiryDuration
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = def.KeyFunc
	}
	return &RateLimiter{
		options: opts,
		clients: make(map[string]*rateClient),
	}
}

// Middleware rejects requests over the limit with 429
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.options.KeyFunc(r)

		if !l.getLimiter(key).Allow() {
			logRequest(r).Warn("Rate limit exceeded",
				"client", key,
				"path", r.URL.Path,
				"method", r.Method,
			)
			if l.options.OnLimited != nil {
				l.options.OnLimited()
			}

			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.options.Burst))
			writeJSON(w, http.StatusTooManyRequests, NewErrorResponse("Too many requests. Please try again later."))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, exists := l.clients[key]
	if !exists {
		limiter := rate.NewLimiter(l.options.Limit, l.options.Burst)
		l.clients[key] = &rateClient{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	c.lastSeen = time.Now()
	return c.limiter
}

// Cleanup removes clients idle past the expiry and returns how many were dropped
func (l *RateLimiter) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, c := range l.clients {
		if now.Sub(c.lastSeen) > l.options.ExpiryDuration {
			delete(l.clients, k)
			removed++
		}
	}
	return removed
}

// Run cleans up stale clients every minute until ctx is done
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Cleanup(now)
		}
	}
}

// clientIP uses RemoteAddr, already rewritten by chi's RealIP middleware
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ============================================================================
// Request metrics
// ============================================================================

// HTTPObserver records served requests
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int)
}

// Metrics records each request under its chi route pattern
// The pattern keeps label cardinality bounded for /api/visits/{visitID}
func Metrics(observer HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observer.ObserveHTTP(r.Method, route, status)
		})
	}
}

// logRequest returns the default logger tagged with the request id
func logRequest(r *http.Request) *slog.Logger {
	if id := chiMiddleware.GetReqID(r.Context()); id != "" {
		return slog.With("request_id", id)
	}
	return slog.Default()
}
