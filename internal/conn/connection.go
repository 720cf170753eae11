// ABOUTME: Represents one logical connection to a tool provider and correlates
// ABOUTME: concurrent request/response exchanges on its transport by request ID.

package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// Connection is the logical link to one remote tool provider: its transport,
// the tool catalog discovered during the handshake, and the set of in-flight
// correlated requests.
type Connection struct {
	Identity string

	transport Transport
	logger    *slog.Logger
	timeout   time.Duration

	mu      sync.RWMutex
	ready   bool
	catalog []protocol.ToolDescriptor
	pending map[string]chan *protocol.Inbound
	closed  bool
}

func newConnection(identity string, t Transport, timeout time.Duration, logger *slog.Logger) *Connection {
	return &Connection{
		Identity:  identity,
		transport: t,
		logger:    logger.With("identity", identity),
		timeout:   timeout,
		pending:   make(map[string]chan *protocol.Inbound),
	}
}

// Call issues a correlated request over the connection's transport and blocks
// until the matching response arrives or the timeout elapses. Any number of
// calls may be outstanding concurrently; each is matched to its response
// purely by correlation ID, so arrival order does not matter.
func (c *Connection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	requestID := uuid.New().String()

	respCh, err := c.createPending(requestID)
	if err != nil {
		return nil, err
	}
	defer c.closePending(requestID)

	data, err := json.Marshal(protocol.NewRequest(requestID, method, params))
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	if err := c.transport.WriteMessage(data); err != nil {
		return nil, fmt.Errorf("writing %s request: %w", method, err)
	}

	c.logger.Debug("request sent", "method", method, "request_id", requestID)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case msg, ok := <-respCh:
		if !ok {
			// The channel closes when the transport goes away.
			return nil, ErrConnectionClosed
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, method, c.timeout)
		}
		return nil, ctx.Err()
	}
}

// HandleResponse routes a decoded response to the pending request with the
// matching correlation ID. Unknown or already-resolved IDs are discarded:
// duplicate and late deliveries are expected, not errors.
func (c *Connection) HandleResponse(msg *protocol.Inbound) {
	// Hold the lock while sending so closePending cannot close the channel
	// between lookup and send.
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("discarding response for unknown request", "request_id", msg.ID)
		return
	}

	select {
	case ch <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.logger.Warn("dropping duplicate response", "request_id", msg.ID)
	}
}

// createPending registers a pending request slot for the given ID.
func (c *Connection) createPending(requestID string) (chan *protocol.Inbound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if _, exists := c.pending[requestID]; exists {
		return nil, ErrDuplicateRequestID
	}

	ch := make(chan *protocol.Inbound, 1)
	c.pending[requestID] = ch
	return ch, nil
}

// closePending removes a pending request slot, closing its channel.
func (c *Connection) closePending(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.pending[requestID]; ok {
		close(ch)
		delete(c.pending, requestID)
	}
}

// Close tears down the connection: the transport is closed and every pending
// request is rejected immediately, since no further response will ever
// arrive. Idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	rejected := len(c.pending)
	for requestID, ch := range c.pending {
		close(ch)
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		c.logger.Debug("closing transport", "error", err)
	}

	if rejected > 0 {
		c.logger.Info("rejected pending requests on close", "count", rejected)
	}
}

// SetCatalog replaces the connection's tool catalog wholesale. The catalog is
// never mutated element-wise; re-initialization swaps the whole slice.
func (c *Connection) SetCatalog(tools []protocol.ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = tools
}

// Catalog returns a copy of the discovered tool catalog.
func (c *Connection) Catalog() []protocol.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]protocol.ToolDescriptor, len(c.catalog))
	copy(tools, c.catalog)
	return tools
}

// MarkReady flags the connection as having completed its handshake.
func (c *Connection) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = true
}

// Ready reports whether the handshake has completed.
func (c *Connection) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// ToolCount returns the size of the discovered catalog.
func (c *Connection) ToolCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.catalog)
}

// PendingCount returns the number of in-flight requests (for tests and
// health reporting).
func (c *Connection) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}
