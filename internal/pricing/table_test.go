package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sleuth/internal/domain"
)

func TestTable_Cost(t *testing.T) {
	table := DefaultTable()

	cost, priced := table.Cost("gpt-4o-mini", domain.TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	})
	require.True(t, priced)
	assert.InDelta(t, 0.75, cost, 1e-9)
}

func TestTable_UnknownModelIsUnpricedNotFatal(t *testing.T) {
	table := DefaultTable()

	cost, priced := table.Cost("some-local-model", domain.TokenUsage{InputTokens: 5000})
	assert.False(t, priced)
	assert.Zero(t, cost)
}

func TestTable_ReportSortsAndFlagsUnpriced(t *testing.T) {
	table := DefaultTable()

	rows := table.Report(map[string]domain.TokenUsage{
		"zz-unknown":  {InputTokens: 100},
		"gpt-4o-mini": {InputTokens: 1_000_000},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, "gpt-4o-mini", rows[0].Model)
	assert.True(t, rows[0].Priced)
	assert.Equal(t, "zz-unknown", rows[1].Model)
	assert.False(t, rows[1].Priced)
	assert.Zero(t, rows[1].Cost)
}

func TestLoadTable_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"my-fine-tune:\n  input_per_million: 1.0\n  output_per_million: 2.0\n"+
			"gpt-4o-mini:\n  input_per_million: 0.30\n  output_per_million: 1.20\n",
	), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	// New model is priced.
	cost, priced := table.Cost("my-fine-tune", domain.TokenUsage{InputTokens: 1_000_000})
	require.True(t, priced)
	assert.InDelta(t, 1.0, cost, 1e-9)

	// Override replaces the built-in price.
	cost, _ = table.Cost("gpt-4o-mini", domain.TokenUsage{InputTokens: 1_000_000})
	assert.InDelta(t, 0.30, cost, 1e-9)

	// Untouched defaults survive.
	_, priced = table.Cost("claude-3-5-sonnet-20241022", domain.TokenUsage{})
	assert.True(t, priced)
}

func TestLoadTable_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("::: not yaml"), 0o644))

		_, err := LoadTable(path)
		assert.Error(t, err)
	})
}
