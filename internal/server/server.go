package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/io-m1/ceti/internal/auth"
	"github.com/io-m1/ceti/internal/ratelimit"
	"github.com/io-m1/ceti/internal/verifier"
)

// Server is the CETI HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Verifier *verifier.Verifier
	Auth     *auth.Verifier
	Logger   *slog.Logger

	// Optional: exactly one of these is set (or neither, disabling rate
	// limiting entirely) depending on whether REDIS_URL is configured.
	RateLimiter     *ratelimit.Limiter
	MemoryLimiter   *ratelimit.MemoryLimiter
	RateLimitPerMin int

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string
}

// New creates a new HTTP server with all routes and middleware configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Verifier:            cfg.Verifier,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", h.HandleRoot)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.Handle("POST /verify", http.HandlerFunc(h.HandleVerify))

	// Middleware chain (outermost executes first):
	// request ID -> security headers -> CORS -> tracing -> logging ->
	// baggage -> auth -> recovery -> rate limit -> mux.
	var handler http.Handler = mux
	switch {
	case cfg.RateLimiter != nil:
		handler = ratelimit.MiddlewareWithRequestID(cfg.RateLimiter,
			ratelimit.Rule{Prefix: "verify", Limit: cfg.RateLimitPerMin, Window: time.Minute},
			rateLimitKeyFunc, RequestIDFromContext)(handler)
	case cfg.MemoryLimiter != nil:
		handler = memoryRateLimitMiddleware(cfg.MemoryLimiter, handler)
	}
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Auth, handler)
	handler = baggageMiddleware(handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// rateLimitKeyFunc rate-limits by caller key prefix when authenticated,
// falling back to client IP for unauthenticated (disabled-auth) deployments.
func rateLimitKeyFunc(r *http.Request) string {
	if claims := ClaimsFromContext(r.Context()); claims != nil && claims.KeyPrefix != "" {
		return claims.KeyPrefix
	}
	return ratelimit.IPKeyFunc(r)
}

// memoryRateLimitMiddleware adapts the in-memory token-bucket limiter to
// the same middleware shape as the Redis-backed one, used when REDIS_URL
// is unset (spec §6).
func memoryRateLimitMiddleware(limiter *ratelimit.MemoryLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKeyFunc(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed, err := limiter.Allow(r.Context(), key)
		if err != nil || allowed {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		writeRateLimitError(w, r)
	})
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
