// ABOUTME: Invocation entity and store methods for the tool-call audit trail.
// ABOUTME: Records which tool ran against which provider, with what outcome.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome of a recorded invocation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Invocation is one audited tool call.
type Invocation struct {
	ID            string        // UUID v4, generated if empty
	Identity      string        // provider the call was routed to
	ToolName      string        // tool invoked
	ArgumentsJSON string        // serialized tool arguments
	Reasoning     string        // model's reasoning for the call
	Outcome       string        // "ok" or "error"
	Detail        string        // result text or error description (truncated)
	Duration      time.Duration // wall-clock execution time
	CreatedAt     time.Time     // generated if zero
}

// maxDetailLen caps how much result/error text is persisted per invocation.
const maxDetailLen = 4096

// RecordInvocation appends an invocation to the audit trail. Generates ID
// and CreatedAt if unset.
func (s *SQLiteStore) RecordInvocation(ctx context.Context, inv *Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	detail := inv.Detail
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen]
	}

	query := `
		INSERT INTO invocations (invocation_id, identity, tool_name, arguments_json, reasoning, outcome, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inv.ID,
		inv.Identity,
		inv.ToolName,
		inv.ArgumentsJSON,
		inv.Reasoning,
		inv.Outcome,
		detail,
		inv.Duration.Milliseconds(),
		inv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("recorded invocation",
		"id", inv.ID,
		"identity", inv.Identity,
		"tool", inv.ToolName,
		"outcome", inv.Outcome,
	)
	return nil
}

// normalizeLimit applies the default (50) and cap (500) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// ListInvocations returns recorded invocations, newest first. An empty
// identity matches all providers.
func (s *SQLiteStore) ListInvocations(ctx context.Context, identity string, limit int) ([]Invocation, error) {
	query := `
		SELECT invocation_id, identity, tool_name, arguments_json, reasoning, outcome, detail, duration_ms, created_at
		FROM invocations
		WHERE (? = '' OR identity = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, identity, identity, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Invocation
	for rows.Next() {
		var inv Invocation
		var durationMS int64
		var tsStr string

		if err := rows.Scan(
			&inv.ID,
			&inv.Identity,
			&inv.ToolName,
			&inv.ArgumentsJSON,
			&inv.Reasoning,
			&inv.Outcome,
			&inv.Detail,
			&durationMS,
			&tsStr,
		); err != nil {
			return nil, fmt.Errorf("scanning invocation: %w", err)
		}

		inv.Duration = time.Duration(durationMS) * time.Millisecond
		inv.CreatedAt, err = time.Parse(time.RFC3339, tsStr)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		entries = append(entries, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocations: %w", err)
	}

	if entries == nil {
		entries = []Invocation{}
	}
	return entries, nil
}
