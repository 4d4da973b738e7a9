// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server hosts the MCP server over WebSocket.
//
// Endpoints:
//   - GET <path> (default /mcp) - WebSocket upgrade, one JSON-RPC message per frame
//   - GET /health              - Liveness and configuration summary
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/lioensky/AIhelpAI-MCP/internal/mcp"
	"github.com/lioensky/AIhelpAI-MCP/internal/telemetry"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPath is where the WebSocket endpoint is mounted.
	DefaultPath = "/mcp"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 5 * time.Second
)

// Status is reported by /health.
type Status struct {
	Models     int                `json:"models"`
	Configured bool               `json:"configured"`
	Sessions   int                `json:"sessions"`
	Usage      *telemetry.Summary `json:"usage,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Details       Status `json:"details"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP host for WebSocket MCP sessions.
type Server struct {
	path      string
	authToken string
	origins   []string
	status    func() Status
	logger    *slog.Logger
	mcp       *mcp.Server
	router    *http.ServeMux
	started   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithPath mounts the WebSocket endpoint at path.
func WithPath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.path = path
		}
	}
}

// WithAuthToken requires a bearer token on every request.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = token
	}
}

// WithOriginPatterns allows cross-origin WebSocket handshakes from the
// given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.origins = patterns
	}
}

// WithStatus sets the source of /health details.
func WithStatus(fn func() Status) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Server that hands every WebSocket connection to m.
func New(m *mcp.Server, opts ...Option) *Server {
	s := &Server{
		path:    DefaultPath,
		status:  func() Status { return Status{} },
		logger:  slog.Default(),
		mcp:     m,
		router:  http.NewServeMux(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Path returns the WebSocket endpoint path.
func (s *Server) Path() string {
	return s.path
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.Handle("GET "+s.path, mcp.WebSocketHandler(s.mcp, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	}))
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		AuthMiddleware(s.authToken, s.logger),
	)(s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.mcp.Info()
	health := HealthResponse{
		Status:        "ok",
		Name:          info.Name,
		Version:       info.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Details:       s.status(),
	}
	if !health.Details.Configured {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Open WebSocket sessions see their request context cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", "addr", "ws://"+ln.Addr().String()+s.path)
		errc <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("websocket server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
