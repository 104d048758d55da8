// Package server serves the registry's MCP surface over streamable HTTP,
// next to a health endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the automata HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds the dependencies and settings for creating a Server.
type ServerConfig struct {
	MCPServer *mcpserver.MCPServer
	Store     Pinger
	Logger    *slog.Logger

	Addr    string
	Version string
	// Token, when set, is required as a bearer token on /mcp.
	Token string

	ReadHeaderTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	mux.HandleFunc("GET /health", healthHandler(cfg.Store, cfg.Version))

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Token, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

func healthHandler(store Pinger, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, storeStatus, code := "healthy", "connected", http.StatusOK
		if err := store.Ping(r.Context()); err != nil {
			status, storeStatus, code = "unhealthy", "disconnected", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{
			"status":  status,
			"store":   storeStatus,
			"version": version,
		})
	}
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
