package evaluation

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sleuth/internal/domain"
)

func TestResultStore_RunArtifactRoundtrip(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	artifact := RunArtifact{
		RunID:     "run-1",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Results: []domain.EvaluationResult{
			{
				Question: domain.Question{Text: "how do judges work?", Difficulty: "beginner"},
				Answer:   "# Answer",
				Article:  &domain.Article{FoundAnswer: true, Title: "Answer"},
				Transcript: domain.Transcript{
					{Kind: domain.KindUser, Content: "how do judges work?"},
					{Kind: domain.KindToolCall, ToolName: "search", CallID: "call_1", Args: map[string]any{"query": "judges"}},
					{Kind: domain.KindToolResult, ToolName: "search", CallID: "call_1", Content: "[]"},
				},
				ToolCallCount: 1,
				Usage:         domain.TokenUsage{InputTokens: 100, OutputTokens: 20},
			},
			{
				Question: domain.Question{Text: "failed one"},
				Error:    "generate capability: model unavailable",
			},
		},
		Usage: map[string]domain.TokenUsage{
			"gpt-4o-mini": {InputTokens: 100, OutputTokens: 20},
		},
	}
	require.NoError(t, store.SaveResults(artifact))

	loaded, err := store.LoadResults("run-1")
	require.NoError(t, err)
	assert.Equal(t, artifact.RunID, loaded.RunID)
	require.Len(t, loaded.Results, 2)
	assert.Equal(t, "how do judges work?", loaded.Results[0].Question.Text)
	assert.Equal(t, domain.KindToolCall, loaded.Results[0].Transcript[1].Kind)
	assert.True(t, loaded.Results[1].Failed())
	assert.Equal(t, artifact.Usage, loaded.Usage)
}

func TestResultStore_JudgeArtifactRoundtrip(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	artifact := JudgeArtifact{
		RunID:     "run-1",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Results: []domain.JudgeResult{{
			Question: domain.Question{Text: "q"},
			Checks:   []domain.JudgeCheck{{Name: "completeness", Pass: true}},
		}},
	}
	require.NoError(t, store.SaveJudgeResults(artifact))

	loaded, err := store.LoadJudgeResults("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, artifact.Results, loaded.Results)
}

func TestResultStore_MissingJudgeArtifactIsNotAnError(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.LoadJudgeResults("never-judged")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestResultStore_MissingRunArtifactIsAnError(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadResults("no-such-run")
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestResultStore_CorruptArtifactIsPartialWriteError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewResultStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.RunPath("run-1"), []byte(`{"run_id": "run-1", "results": [`), 0o644))

	_, err = store.LoadResults("run-1")
	var pwErr *domain.PartialWriteError
	require.ErrorAs(t, err, &pwErr)
	assert.Equal(t, store.RunPath("run-1"), pwErr.Path)
}

func TestResultStore_PathsAreKeyedByRunID(t *testing.T) {
	store, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	assert.Contains(t, store.RunPath("abc"), "eval-run-abc.json")
	assert.Contains(t, store.JudgePath("abc"), "eval-judge-abc.json")
}

func TestNewResultStore_EmptyDir(t *testing.T) {
	_, err := NewResultStore("")
	assert.Error(t, err)
}
