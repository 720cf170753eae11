// ABOUTME: Tests for the SQLite-backed invocation audit trail.
// ABOUTME: Round trips, identity filtering, ordering, and limits.

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListInvocations(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	fixtures := []Invocation{
		{Identity: "alpha", ToolName: "search", ArgumentsJSON: `{"q":"go"}`, Outcome: OutcomeOK, Detail: "10 results", Duration: 120 * time.Millisecond, CreatedAt: base},
		{Identity: "alpha", ToolName: "fetch", Outcome: OutcomeError, Detail: "timeout", Duration: 30 * time.Second, CreatedAt: base.Add(time.Minute)},
		{Identity: "beta", ToolName: "echo", Outcome: OutcomeOK, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range fixtures {
		require.NoError(t, s.RecordInvocation(ctx, &fixtures[i]))
		assert.NotEmpty(t, fixtures[i].ID, "ID should be generated")
	}

	t.Run("empty identity matches all, newest first", func(t *testing.T) {
		entries, err := s.ListInvocations(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "echo", entries[0].ToolName)
		assert.Equal(t, "fetch", entries[1].ToolName)
		assert.Equal(t, "search", entries[2].ToolName)
	})

	t.Run("filters by identity", func(t *testing.T) {
		entries, err := s.ListInvocations(ctx, "alpha", 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		for _, e := range entries {
			assert.Equal(t, "alpha", e.Identity)
		}
	})

	t.Run("round trips all fields", func(t *testing.T) {
		entries, err := s.ListInvocations(ctx, "alpha", 0)
		require.NoError(t, err)

		got := entries[1] // oldest of alpha's two
		assert.Equal(t, "search", got.ToolName)
		assert.Equal(t, `{"q":"go"}`, got.ArgumentsJSON)
		assert.Equal(t, OutcomeOK, got.Outcome)
		assert.Equal(t, "10 results", got.Detail)
		assert.Equal(t, 120*time.Millisecond, got.Duration)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("respects limit", func(t *testing.T) {
		entries, err := s.ListInvocations(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "echo", entries[0].ToolName)
	})

	t.Run("no matches returns empty slice", func(t *testing.T) {
		entries, err := s.ListInvocations(ctx, "ghost", 0)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})
}

func TestRecordInvocationTruncatesDetail(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inv := &Invocation{
		Identity: "alpha",
		ToolName: "dump",
		Outcome:  OutcomeOK,
		Detail:   strings.Repeat("x", maxDetailLen+100),
	}
	require.NoError(t, s.RecordInvocation(ctx, inv))

	entries, err := s.ListInvocations(ctx, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Detail, maxDetailLen)
}

func TestRecordInvocationRejectsBadOutcome(t *testing.T) {
	s := createTestStore(t)

	err := s.RecordInvocation(context.Background(), &Invocation{
		Identity: "alpha",
		ToolName: "search",
		Outcome:  "maybe",
	})
	assert.Error(t, err, "CHECK constraint should reject unknown outcomes")
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 50, normalizeLimit(0))
	assert.Equal(t, 50, normalizeLimit(-5))
	assert.Equal(t, 10, normalizeLimit(10))
	assert.Equal(t, 500, normalizeLimit(9999))
}
