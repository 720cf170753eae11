// ABOUTME: Per-connection read loop classifying inbound frames from a provider.
// ABOUTME: Routes correlated responses to waiters; logs notifications and junk.

package conn

import (
	"errors"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// ReadLoop consumes frames from the connection's transport until it closes.
// Each frame is decoded and classified: correlated responses resolve their
// pending request, notifications are observed and logged, and malformed
// frames are discarded without dropping the connection. When the transport
// closes, this connection (and only this one) is removed from the registry,
// which rejects any requests still in flight; if the identity has already
// re-registered, the replacement stays.
//
// Runs on its own goroutine for the connection's full lifetime.
func (r *Registry) ReadLoop(c *Connection) {
	defer r.unregisterConn(c)

	for {
		data, err := c.transport.ReadMessage()
		if err != nil {
			c.logger.Info("transport closed", "error", err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			if errors.Is(err, protocol.ErrDecode) {
				c.logger.Warn("discarding malformed frame", "error", err)
				continue
			}
			c.logger.Warn("decoding frame", "error", err)
			continue
		}

		switch msg.Kind {
		case protocol.KindSuccessResponse, protocol.KindErrorResponse:
			c.HandleResponse(msg)

		case protocol.KindNotification:
			// No correlation possible; observed only. Consumers wanting
			// notification handling hook in above this layer.
			c.logger.Info("notification from provider", "method", msg.Method)

		case protocol.KindRequest:
			c.logger.Warn("provider-initiated request not supported",
				"method", msg.Method,
				"request_id", msg.ID,
			)
		}
	}
}
