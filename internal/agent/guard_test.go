package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sleuth/internal/domain"
)

func transcriptWithSearches(n int) domain.Transcript {
	t := domain.Transcript{{Kind: domain.KindUser, Content: "how do judges work?"}}
	for i := 0; i < n; i++ {
		t = t.Append(domain.Message{
			Kind:     domain.KindToolCall,
			ToolName: "search",
			Args:     map[string]any{"query": "judges"},
		})
		t = t.Append(domain.Message{
			Kind:     domain.KindToolResult,
			ToolName: "search",
			Content:  "[]",
		})
	}
	return t
}

func TestHistoryGuard_BelowThresholdUnchanged(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 6}
	history := transcriptWithSearches(5)

	got := guard.Enforce(history)

	assert.Equal(t, history, got)
}

func TestHistoryGuard_AtThresholdInjectsFinishPrompt(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 6}
	history := transcriptWithSearches(6)

	got := guard.Enforce(history)

	require.Len(t, got, len(history)+1)
	last, ok := got.Last()
	require.True(t, ok)
	assert.Equal(t, domain.KindUser, last.Kind)
	assert.Contains(t, last.Content, "Do not call any more tools")
	assert.Contains(t, last.Content, "6")
}

func TestHistoryGuard_Idempotent(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 3}
	history := transcriptWithSearches(3)

	once := guard.Enforce(history)
	twice := guard.Enforce(once)

	assert.Equal(t, once, twice)
}

func TestHistoryGuard_DoesNotMutateInput(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 2}
	history := transcriptWithSearches(2)
	originalLen := len(history)

	_ = guard.Enforce(history)

	assert.Len(t, history, originalLen)
	last, _ := history.Last()
	assert.Equal(t, domain.KindToolResult, last.Kind)
}

func TestHistoryGuard_EmptyTranscript(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 1}

	got := guard.Enforce(domain.Transcript{})

	assert.Empty(t, got)
}

func TestHistoryGuard_OnlyCountsGuardedTool(t *testing.T) {
	guard := HistoryGuard{Tool: "search", Threshold: 2}
	history := domain.Transcript{
		{Kind: domain.KindUser, Content: "q"},
		{Kind: domain.KindToolCall, ToolName: "lookup", Args: map[string]any{"query": "a"}},
		{Kind: domain.KindToolCall, ToolName: "lookup", Args: map[string]any{"query": "b"}},
	}

	got := guard.Enforce(history)

	assert.Equal(t, history, got)
}
