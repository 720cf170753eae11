// ABOUTME: Transport abstraction over the framed byte stream to a tool provider.
// ABOUTME: The websocket implementation lives in internal/server; tests use pipes.

package conn

// Transport is an exclusively owned handle for exchanging framed messages
// with a single tool provider. The owning Connection is responsible for
// closing it. Implementations must allow ReadMessage and WriteMessage to be
// called from different goroutines, and Close to unblock a pending read.
type Transport interface {
	// WriteMessage sends one framed message. Safe for concurrent callers.
	WriteMessage(data []byte) error

	// ReadMessage blocks until the next framed message arrives or the
	// transport closes. Only the dispatcher's read loop calls this.
	ReadMessage() ([]byte, error)

	// Close tears down the transport. Idempotent.
	Close() error
}
