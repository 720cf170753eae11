// ABOUTME: Shared test doubles for the conn package.
// ABOUTME: Channel-backed fake transport with optional scripted responder.

package conn

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// fakeTransport is an in-memory Transport. Frames delivered with deliver()
// come out of ReadMessage; writes are recorded and optionally handed to a
// scripted responder.
type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool

	frames  chan []byte
	onWrite func(data []byte)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 16)}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	t.written = append(t.written, data)
	onWrite := t.onWrite
	t.mu.Unlock()

	if onWrite != nil {
		go onWrite(data)
	}
	return nil
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	data, ok := <-t.frames
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.frames)
	}
	return nil
}

func (t *fakeTransport) deliver(data []byte) {
	t.frames <- data
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// sentRequests decodes every frame written so far.
func (t *fakeTransport) sentRequests(tb testing.TB) []protocol.Request {
	tb.Helper()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]protocol.Request, len(t.written))
	for i, data := range t.written {
		require.NoError(tb, json.Unmarshal(data, &out[i]))
	}
	return out
}

// waitForRequests polls until n requests have been written.
func (t *fakeTransport) waitForRequests(tb testing.TB, n int) []protocol.Request {
	tb.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		count := len(t.written)
		t.mu.Unlock()
		if count >= n {
			return t.sentRequests(tb)
		}
		time.Sleep(time.Millisecond)
	}
	tb.Fatalf("timed out waiting for %d requests", n)
	return nil
}

// successFrame builds a raw success-response frame for a request ID.
func successFrame(tb testing.TB, id string, result any) []byte {
	tb.Helper()

	raw, err := json.Marshal(result)
	require.NoError(tb, err)

	frame, err := json.Marshal(map[string]any{
		"jsonrpc": protocol.Version,
		"id":      id,
		"result":  json.RawMessage(raw),
	})
	require.NoError(tb, err)
	return frame
}

// errorFrame builds a raw error-response frame for a request ID.
func errorFrame(tb testing.TB, id string, code int, message string) []byte {
	tb.Helper()

	frame, err := json.Marshal(map[string]any{
		"jsonrpc": protocol.Version,
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
	require.NoError(tb, err)
	return frame
}
