// ABOUTME: Decision-function contract between the chat loop and the model.
// ABOUTME: Maps a query plus tool catalog to a direct answer or tool calls.

package llm

import (
	"context"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// Message is one turn of prior conversation supplied by the caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a single tool invocation the model requested.
type ToolCall struct {
	ToolName  string         `json:"tool_name"`
	ToolArgs  map[string]any `json:"tool_args"`
	Reasoning string         `json:"reasoning"`
}

// ToolResult is the outcome of one executed tool call, fed back to the model
// for synthesis and returned to chat callers for audit.
type ToolResult struct {
	ToolName  string `json:"tool_name"`
	Result    string `json:"result,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether this tool call ended in an error.
func (r ToolResult) Failed() bool {
	return r.Error != ""
}

// Decision is the model's verdict: either a direct answer or one or more
// tool calls to perform first.
type Decision struct {
	NeedsTools bool
	Content    string
	ToolCalls  []ToolCall
}

// Decider is the external decision function. Implementations must fail
// gracefully: a malformed model reply degrades to a plain-text Decision
// rather than an error, and only transport-level failures return one.
type Decider interface {
	Decide(ctx context.Context, query string, catalog []protocol.ToolDescriptor, history []Message, priorResults []ToolResult) (*Decision, error)
}
