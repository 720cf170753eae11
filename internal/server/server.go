// ABOUTME: HTTP surface of the bridge: provider websocket endpoint, chat API,
// ABOUTME: status, invocation audit listing, and health reporting.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/mcp-bridge/internal/auth"
	"github.com/2389/mcp-bridge/internal/chat"
	"github.com/2389/mcp-bridge/internal/conn"
	"github.com/2389/mcp-bridge/internal/llm"
	"github.com/2389/mcp-bridge/internal/store"
)

// Orchestrator runs chat requests against ready tool providers.
type Orchestrator interface {
	Chat(ctx context.Context, identity, query string, history []llm.Message) (*chat.Result, error)
}

// InvocationLister exposes the audit trail for the API. Nil disables the
// endpoint.
type InvocationLister interface {
	ListInvocations(ctx context.Context, identity string, limit int) ([]store.Invocation, error)
}

// Config assembles a Server.
type Config struct {
	Registry *conn.Registry
	Chat     Orchestrator
	Store    InvocationLister
	Verifier auth.TokenVerifier // nil disables API auth
	Logger   *slog.Logger
}

// Server wires the registry, orchestration service, and audit store to HTTP.
type Server struct {
	registry *conn.Registry
	chat     Orchestrator
	store    InvocationLister
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// New creates a Server from the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		registry: cfg.Registry,
		chat:     cfg.Chat,
		store:    cfg.Store,
		verifier: cfg.Verifier,
		logger:   logger.With("component", "server"),
	}, nil
}

// Handler returns the root HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.requireAuth(s.handleChat))
	mux.HandleFunc("/api/status/", s.requireAuth(s.handleStatus))
	mux.HandleFunc("/api/invocations", s.requireAuth(s.handleInvocations))

	return mux
}

// requireAuth enforces bearer-token auth on API handlers when a verifier is
// configured. The websocket and health endpoints stay open.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.verifier == nil {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		subject, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Debug("rejected API token", "error", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		s.logger.Debug("authenticated API request", "subject", subject, "path", r.URL.Path)
		next(w, r)
	}
}
