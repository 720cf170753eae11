// ABOUTME: Tool-orchestration chat loop: decide, execute tools sequentially,
// ABOUTME: synthesize a final answer, and return the audit trail.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/mcp-bridge/internal/conn"
	"github.com/2389/mcp-bridge/internal/llm"
	"github.com/2389/mcp-bridge/internal/protocol"
	"github.com/2389/mcp-bridge/internal/store"
)

// ErrDecision indicates the external decision function failed outside the
// tool-execution phase. Failures during execution are captured per-call in
// the tool results instead.
var ErrDecision = errors.New("decision function failed")

// InvocationRecorder persists an audit record for each tool call the loop
// issues. Safe for concurrent use. Nil disables recording.
type InvocationRecorder interface {
	RecordInvocation(ctx context.Context, inv *store.Invocation) error
}

// Result is the outcome of one chat request: the final answer plus an
// ordered record of every tool invoked on its behalf.
type Result struct {
	Answer      string
	ToolsUsed   []string
	ToolResults []llm.ToolResult
}

// Service runs chat requests against ready tool-provider connections. It
// holds no per-request state; any number of requests may run concurrently
// against any mix of connections.
type Service struct {
	registry *conn.Registry
	decider  llm.Decider
	recorder InvocationRecorder
	logger   *slog.Logger
}

// Config assembles a Service.
type Config struct {
	Registry *conn.Registry
	Decider  llm.Decider
	Recorder InvocationRecorder
	Logger   *slog.Logger
}

// NewService creates the orchestration service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Decider == nil {
		return nil, errors.New("decider is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		registry: cfg.Registry,
		decider:  cfg.Decider,
		recorder: cfg.Recorder,
		logger:   logger.With("component", "chat"),
	}, nil
}

// Chat answers a user query against the identified provider. If the decision
// function requests tools, they are executed sequentially in the order
// received, since a later call may depend on an earlier one's side effects.
// A per-call failure is captured in the results rather than aborting the
// remaining calls. A second decision call then synthesizes the final answer
// from all collected results.
func (s *Service) Chat(ctx context.Context, identity, query string, history []llm.Message) (*Result, error) {
	c, ok := s.registry.Lookup(identity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", conn.ErrConnectionNotFound, identity)
	}
	if !c.Ready() {
		return nil, fmt.Errorf("%w: %s", conn.ErrSessionNotReady, identity)
	}

	catalog := c.Catalog()

	decision, err := s.decider.Decide(ctx, query, catalog, history, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecision, err)
	}

	if !decision.NeedsTools {
		return &Result{
			Answer:      decision.Content,
			ToolsUsed:   []string{},
			ToolResults: []llm.ToolResult{},
		}, nil
	}

	toolsUsed := make([]string, 0, len(decision.ToolCalls))
	results := make([]llm.ToolResult, 0, len(decision.ToolCalls))
	for _, call := range decision.ToolCalls {
		toolsUsed = append(toolsUsed, call.ToolName)
		results = append(results, s.executeTool(ctx, c, call))
	}

	synth, err := s.decider.Decide(ctx, query, catalog, history, results)
	if err != nil {
		return nil, fmt.Errorf("%w while synthesizing: %w", ErrDecision, err)
	}
	if synth.NeedsTools {
		// The synthesis pass must not fan out again; take whatever text
		// came back and log the anomaly.
		s.logger.Warn("synthesis pass requested more tools", "identity", identity)
	}

	return &Result{
		Answer:      synth.Content,
		ToolsUsed:   toolsUsed,
		ToolResults: results,
	}, nil
}

// executeTool issues one tools/call through the correlation layer and folds
// the outcome, success or failure, into a ToolResult.
func (s *Service) executeTool(ctx context.Context, c *conn.Connection, call llm.ToolCall) llm.ToolResult {
	result := llm.ToolResult{
		ToolName:  call.ToolName,
		Reasoning: call.Reasoning,
	}

	s.logger.Info("executing tool",
		"identity", c.Identity,
		"tool", call.ToolName,
	)

	started := time.Now()
	raw, err := c.Call(ctx, protocol.MethodToolsCall, protocol.ToolsCallParams{
		Name:      call.ToolName,
		Arguments: call.ToolArgs,
	})
	elapsed := time.Since(started)

	switch {
	case err != nil:
		result.Error = err.Error()
		s.logger.Warn("tool call failed",
			"identity", c.Identity,
			"tool", call.ToolName,
			"error", err,
		)

	default:
		var payload protocol.ToolsCallResult
		if uerr := json.Unmarshal(raw, &payload); uerr != nil {
			result.Error = fmt.Sprintf("decoding tool result: %v", uerr)
		} else if payload.IsError {
			result.Error = payload.Text()
		} else {
			result.Result = payload.Text()
		}
	}

	s.record(ctx, c.Identity, call, result, elapsed)
	return result
}

// record appends the invocation to the audit store, if one is configured.
func (s *Service) record(ctx context.Context, identity string, call llm.ToolCall, result llm.ToolResult, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}

	argsJSON, err := json.Marshal(call.ToolArgs)
	if err != nil {
		argsJSON = []byte("{}")
	}

	inv := &store.Invocation{
		Identity:      identity,
		ToolName:      call.ToolName,
		ArgumentsJSON: string(argsJSON),
		Reasoning:     call.Reasoning,
		Outcome:       store.OutcomeOK,
		Detail:        result.Result,
		Duration:      elapsed,
	}
	if result.Failed() {
		inv.Outcome = store.OutcomeError
		inv.Detail = result.Error
	}

	if err := s.recorder.RecordInvocation(ctx, inv); err != nil {
		s.logger.Warn("recording invocation", "error", err)
	}
}

// Status reports readiness and tool count for an identity, for health
// endpoints.
func (s *Service) Status(identity string) (conn.ProviderStatus, bool) {
	return s.registry.Status(identity)
}
