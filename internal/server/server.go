package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teemow/gmailnotifier/internal/instrumentation"
)

// DefaultListenAddr is the default address for the application server.
const DefaultListenAddr = ":8080"

// HTTPServerConfig holds configuration for the application HTTP server.
type HTTPServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// BaseURL is the externally visible base URL the OAuth provider
	// redirects back to. HTTP is only accepted for loopback hosts; empty
	// skips the check (local development without a public URL).
	BaseURL string

	// Handlers is the application handler set. Required.
	Handlers *Handlers

	// Health provides the probe endpoints. Defaults to a fresh checker.
	Health *HealthChecker

	// RateLimiter guards the OAuth endpoints. nil disables limiting.
	RateLimiter *RateLimiter

	// Logger and Metrics feed the access-log middleware.
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// HTTPServer serves the application endpoints: the OAuth flow, the cron and
// query handlers, the push-triggered check, and the health probes.
type HTTPServer struct {
	httpServer *http.Server
	handlers   *Handlers
	health     *HealthChecker
	limiter    *RateLimiter
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	addr       string
	baseURL    string
}

// NewHTTPServer creates the application server.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.Handlers == nil {
		return nil, fmt.Errorf("handlers are required")
	}
	if config.Addr == "" {
		config.Addr = DefaultListenAddr
	}
	if config.Health == nil {
		config.Health = NewHealthChecker()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &HTTPServer{
		handlers: config.Handlers,
		health:   config.Health,
		limiter:  config.RateLimiter,
		metrics:  config.Metrics,
		logger:   config.Logger,
		addr:     config.Addr,
		baseURL:  config.BaseURL,
	}, nil
}

// Health returns the server's health checker.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// buildHandler assembles the route table and the middleware chain.
func (s *HTTPServer) buildHandler() http.Handler {
	mux := http.NewServeMux()

	// Only the OAuth endpoints are rate limited; they are the ones an
	// outsider can usefully hammer.
	mux.Handle("/oauth2init", s.limiter.Middleware(http.HandlerFunc(s.handlers.HandleOAuth2Init)))
	mux.Handle("/oauth2callback", s.limiter.Middleware(http.HandlerFunc(s.handlers.HandleOAuth2Callback)))
	mux.HandleFunc("/setCron", s.handlers.HandleSetCron)
	mux.HandleFunc("/setEditQuery", s.handlers.HandleSetEditQuery)
	mux.HandleFunc("/notify", s.handlers.HandleNotify)
	s.health.RegisterHealthEndpoints(mux)

	return RequestIDMiddleware(LoggingMiddleware(s.logger, s.metrics)(mux))
}

// Start starts the server in a blocking manner. The server reports ready
// once the listener is about to accept.
func (s *HTTPServer) Start() error {
	// Credentials transit the callback; outside local development the
	// public URL must be HTTPS.
	if s.baseURL != "" {
		if err := validateHTTPSRequirement(s.baseURL); err != nil {
			return err
		}
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.health.SetReady(true)
	s.logger.Info("starting http server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Readiness fails immediately so
// traffic drains while in-flight requests complete.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.MarkShutdown()
	if s.httpServer != nil {
		s.logger.Info("shutting down http server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement ensures the externally visible URL uses HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("HTTPS is required for non-local base URLs (got: %s)", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
