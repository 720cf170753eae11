// ABOUTME: HTTP handler tests: chat error mapping, status, health, auth,
// ABOUTME: and invocation listing against stub collaborators.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-bridge/internal/auth"
	"github.com/2389/mcp-bridge/internal/chat"
	"github.com/2389/mcp-bridge/internal/conn"
	"github.com/2389/mcp-bridge/internal/llm"
	"github.com/2389/mcp-bridge/internal/protocol"
	"github.com/2389/mcp-bridge/internal/store"
)

// stubOrchestrator returns a canned result or error.
type stubOrchestrator struct {
	result *chat.Result
	err    error
	gotID  string
	gotQ   string
}

func (s *stubOrchestrator) Chat(_ context.Context, identity, query string, _ []llm.Message) (*chat.Result, error) {
	s.gotID = identity
	s.gotQ = query
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubLister serves canned invocations.
type stubLister struct {
	entries []store.Invocation
	err     error
}

func (s *stubLister) ListInvocations(_ context.Context, _ string, _ int) ([]store.Invocation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

// nopTransport satisfies conn.Transport for registry fixtures; reads block
// until Close.
type nopTransport struct {
	done chan struct{}
}

func newNopTransport() *nopTransport {
	return &nopTransport{done: make(chan struct{})}
}

func (t *nopTransport) WriteMessage([]byte) error { return nil }

func (t *nopTransport) ReadMessage() ([]byte, error) {
	<-t.done
	return nil, io.EOF
}

func (t *nopTransport) Close() error {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	return nil
}

type fixture struct {
	server   *Server
	registry *conn.Registry
	orch     *stubOrchestrator
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	registry := conn.NewRegistry(time.Second, slog.Default())
	orch := &stubOrchestrator{result: &chat.Result{Answer: "ok"}}

	cfg := Config{
		Registry: registry,
		Chat:     orch,
		Logger:   slog.Default(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg)
	require.NoError(t, err)
	return &fixture{server: srv, registry: registry, orch: orch}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	transport := newNopTransport()
	f.registry.Register("alpha", transport)
	t.Cleanup(func() { transport.Close() })
	f.registry.SetToolCatalog("alpha", []protocol.ToolDescriptor{{Name: "search"}})
	f.registry.MarkReady("alpha")

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 1, resp.ActiveConnections)
	require.Contains(t, resp.Connections, "alpha")
	assert.True(t, resp.Connections["alpha"].Initialized)
	assert.Equal(t, 1, resp.Connections["alpha"].ToolsCount)
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	transport := newNopTransport()
	f.registry.Register("alpha", transport)
	t.Cleanup(func() { transport.Close() })

	t.Run("known identity", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/status/alpha", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp StatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "alpha", resp.Identity)
		assert.False(t, resp.Initialized)
	})

	t.Run("unknown identity", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/status/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing identity", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/status/", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestChatEndpointSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.orch.result = &chat.Result{
		Answer:      "# Heading\n\nbody",
		ToolsUsed:   []string{"search"},
		ToolResults: []llm.ToolResult{{ToolName: "search", Result: "data"}},
	}

	rec := f.do(t, http.MethodPost, "/api/chat", ChatRequest{Identity: "alpha", Query: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "# Heading\n\nbody", resp.Answer)
	assert.Contains(t, resp.AnswerHTML, "<h1")
	assert.Equal(t, []string{"search"}, resp.ToolsUsed)

	assert.Equal(t, "alpha", f.orch.gotID)
	assert.Equal(t, "hi", f.orch.gotQ)
}

func TestChatEndpointValidation(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("missing fields", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/chat", ChatRequest{Identity: "alpha"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte("{nope")))
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/chat", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestChatEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"connection not found", fmt.Errorf("%w: alpha", conn.ErrConnectionNotFound), http.StatusNotFound},
		{"session not ready", fmt.Errorf("%w: alpha", conn.ErrSessionNotReady), http.StatusBadRequest},
		{"request timeout", fmt.Errorf("%w: tools/call after 30s", conn.ErrRequestTimeout), http.StatusGatewayTimeout},
		{"connection closed", conn.ErrConnectionClosed, http.StatusBadGateway},
		{"provider error", &protocol.RPCError{Code: -32601, Message: "nope"}, http.StatusBadGateway},
		{"decision failure", fmt.Errorf("%w: model unavailable", chat.ErrDecision), http.StatusBadGateway},
		{"unknown error", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.orch.err = tc.err

			rec := f.do(t, http.MethodPost, "/api/chat", ChatRequest{Identity: "alpha", Query: "hi"})
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestInvocationsEndpoint(t *testing.T) {
	lister := &stubLister{entries: []store.Invocation{{
		ID:        "inv-1",
		Identity:  "alpha",
		ToolName:  "search",
		Outcome:   store.OutcomeOK,
		Duration:  120 * time.Millisecond,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}}}
	f := newFixture(t, func(cfg *Config) { cfg.Store = lister })

	rec := f.do(t, http.MethodGet, "/api/invocations?identity=alpha", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []InvocationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "search", resp[0].ToolName)
	assert.Equal(t, "120ms", resp[0].Duration)
	assert.Equal(t, "2026-08-01T12:00:00Z", resp[0].CreatedAt)

	t.Run("invalid limit", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/invocations?limit=ten", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no store configured", func(t *testing.T) {
		bare := newFixture(t, nil)
		rec := bare.do(t, http.MethodGet, "/api/invocations", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPIRequiresAuthWhenConfigured(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("test-secret"))
	f := newFixture(t, func(cfg *Config) { cfg.Verifier = verifier })

	t.Run("missing token", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/chat", ChatRequest{Identity: "a", Query: "q"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"identity":"a","query":"q"}`)))
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := verifier.Generate("tester", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(`{"identity":"a","query":"q"}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health stays open", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Chat: &stubOrchestrator{}})
	assert.Error(t, err)

	_, err = New(Config{Registry: conn.NewRegistry(0, nil)})
	assert.Error(t, err)
}
