// ABOUTME: Fixed two-step session handshake run once per new connection.
// ABOUTME: Capability negotiation, then tool-catalog retrieval; marks ready.

package conn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// mcpProtocolVersion is the protocol version advertised during initialize.
const mcpProtocolVersion = "2024-11-05"

// clientInfo identifies this process to providers.
var clientInfo = protocol.ClientInfo{
	Name:    "mcp-bridge",
	Version: "1.0.0",
}

// Initialize runs the capability-discovery handshake on a freshly registered
// connection: an initialize exchange, then tools/list to populate the
// catalog, then the ready flag. If either step fails the connection stays
// not-ready and no retry is attempted here; retry is caller policy.
func (r *Registry) Initialize(ctx context.Context, c *Connection) error {
	params := protocol.InitializeParams{
		ProtocolVersion: mcpProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ClientInfo: clientInfo,
	}

	// Response discarded beyond confirming no error.
	if _, err := c.Call(ctx, protocol.MethodInitialize, params); err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}

	result, err := c.Call(ctx, protocol.MethodToolsList, nil)
	if err != nil {
		return fmt.Errorf("listing tools: %w", err)
	}

	var list protocol.ToolsListResult
	if err := json.Unmarshal(result, &list); err != nil {
		return fmt.Errorf("decoding tools/list result: %w", err)
	}

	r.SetToolCatalog(c.Identity, list.Tools)
	r.MarkReady(c.Identity)

	names := make([]string, len(list.Tools))
	for i, t := range list.Tools {
		names[i] = t.Name
	}
	c.logger.Info("session initialized", "tool_count", len(list.Tools), "tools", names)

	return nil
}
