// ABOUTME: JSON API handlers: chat requests, provider status, invocation audit.
// ABOUTME: Maps the orchestration error taxonomy onto HTTP status codes.

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/mcp-bridge/internal/chat"
	"github.com/2389/mcp-bridge/internal/conn"
	"github.com/2389/mcp-bridge/internal/llm"
	"github.com/2389/mcp-bridge/internal/protocol"
)

// ChatRequest is the JSON request body for POST /api/chat.
type ChatRequest struct {
	Identity            string        `json:"identity"`
	Query               string        `json:"query"`
	ConversationHistory []llm.Message `json:"conversation_history,omitempty"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Answer      string           `json:"answer"`
	AnswerHTML  string           `json:"answer_html,omitempty"`
	ToolsUsed   []string         `json:"tools_used"`
	ToolResults []llm.ToolResult `json:"tool_results,omitempty"`
}

// StatusResponse is the JSON response for GET /api/status/{identity}.
type StatusResponse struct {
	Identity    string `json:"identity"`
	Initialized bool   `json:"initialized"`
	ToolCount   int    `json:"tool_count"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status            string                      `json:"status"`
	ActiveConnections int                         `json:"active_connections"`
	Connections       map[string]ConnectionHealth `json:"connections"`
}

// ConnectionHealth is one provider's entry in the health response.
type ConnectionHealth struct {
	Initialized bool `json:"initialized"`
	ToolsCount  int  `json:"tools_count"`
}

// InvocationResponse is one audit entry in GET /api/invocations.
type InvocationResponse struct {
	ID        string `json:"id"`
	Identity  string `json:"identity"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	Duration  string `json:"duration"`
	CreatedAt string `json:"created_at"`
}

// errorResponse is the uniform JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Identity == "" || req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "identity and query are required")
		return
	}

	result, err := s.chat.Chat(r.Context(), req.Identity, req.Query, req.ConversationHistory)
	if err != nil {
		s.writeChatError(w, err)
		return
	}

	resp := ChatResponse{
		Answer:      result.Answer,
		AnswerHTML:  renderMarkdown(result.Answer),
		ToolsUsed:   result.ToolsUsed,
		ToolResults: result.ToolResults,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeChatError maps orchestration errors onto HTTP statuses.
func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var rpcErr *protocol.RPCError

	switch {
	case errors.Is(err, conn.ErrConnectionNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conn.ErrSessionNotReady):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conn.ErrRequestTimeout):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, conn.ErrConnectionClosed):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &rpcErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, chat.ErrDecision):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("chat request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// handleStatus handles GET /api/status/{identity}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := strings.TrimPrefix(r.URL.Path, "/api/status/")
	identity = strings.TrimRight(identity, "/")
	if identity == "" {
		s.writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	status, ok := s.registry.Status(identity)
	if !ok {
		s.writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	s.writeJSON(w, http.StatusOK, StatusResponse{
		Identity:    status.Identity,
		Initialized: status.Initialized,
		ToolCount:   status.ToolCount,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	providers := s.registry.List()
	connections := make(map[string]ConnectionHealth, len(providers))
	for _, p := range providers {
		connections[p.Identity] = ConnectionHealth{
			Initialized: p.Initialized,
			ToolsCount:  p.ToolCount,
		}
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "healthy",
		ActiveConnections: len(providers),
		Connections:       connections,
	})
}

// handleInvocations handles GET /api/invocations?identity=X&limit=N.
func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.store.ListInvocations(r.Context(), r.URL.Query().Get("identity"), limit)
	if err != nil {
		s.logger.Error("listing invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]InvocationResponse, len(entries))
	for i, inv := range entries {
		out[i] = InvocationResponse{
			ID:        inv.ID,
			Identity:  inv.Identity,
			ToolName:  inv.ToolName,
			Arguments: inv.ArgumentsJSON,
			Reasoning: inv.Reasoning,
			Outcome:   inv.Outcome,
			Detail:    inv.Detail,
			Duration:  inv.Duration.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// renderMarkdown converts a markdown answer to HTML. Returns "" on failure;
// the plain answer field is always present.
func renderMarkdown(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
