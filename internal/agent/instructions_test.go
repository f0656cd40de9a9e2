package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInstructions_SearchPolicy(t *testing.T) {
	cfg := defaultRunnerConfig("evidently")
	cfg.ExcludeTerms = []string{"evidently"}

	got, err := buildInstructions(cfg)
	require.NoError(t, err)

	assert.Contains(t, got, "at least 3 and at most 6")
	assert.Contains(t, got, "evidently documentation")
	assert.Contains(t, got, `Never use the term "evidently" in a search query`)
	assert.Contains(t, got, "set found_answer to false")
}

func TestBuildInstructions_OptionalDescription(t *testing.T) {
	cfg := defaultRunnerConfig("evidently")
	cfg.CorpusDescription = "Evidently is an ML observability toolkit."

	got, err := buildInstructions(cfg)
	require.NoError(t, err)

	assert.Contains(t, got, "ML observability toolkit")
}
