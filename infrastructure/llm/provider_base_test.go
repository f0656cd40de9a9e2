package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got := ParseRequestOptions(nil, "default-model")

		assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
		assert.Equal(t, "default-model", got.Model)
		assert.Nil(t, got.Temperature)
		assert.Nil(t, got.TopP)
	})

	t.Run("standard options", func(t *testing.T) {
		got := ParseRequestOptions(map[string]any{
			"max_tokens":  1024,
			"model":       "override-model",
			"temperature": 0.2,
			"top_p":       0.9,
		}, "default-model")

		assert.Equal(t, 1024, got.MaxTokens)
		assert.Equal(t, "override-model", got.Model)
		require.NotNil(t, got.Temperature)
		assert.Equal(t, 0.2, *got.Temperature)
		require.NotNil(t, got.TopP)
		assert.Equal(t, 0.9, *got.TopP)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		got := ParseRequestOptions(map[string]any{
			"max_tokens":  -5,
			"temperature": 9.0,
			"top_p":       3.0,
		}, "default-model")

		assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
		assert.Nil(t, got.Temperature)
		assert.Nil(t, got.TopP)
	})

	t.Run("unknown keys collected into extra", func(t *testing.T) {
		got := ParseRequestOptions(map[string]any{
			"max_tokens":     256,
			"stop_sequences": []string{"END"},
		}, "default-model")

		assert.Equal(t, []string{"END"}, got.Extra["stop_sequences"])
		assert.NotContains(t, got.Extra, "max_tokens")
	})
}

func TestTokenCounter(t *testing.T) {
	tc := NewTokenCounter()

	assert.Equal(t, 0, tc.EstimateTokens(""))
	assert.Equal(t, 10, tc.EstimateTokens("0123456789012345678901234567890123456789"))

	// An actual count wins over estimation.
	assert.Equal(t, 7, tc.GetTokenCount(7, "some text"))
	assert.Equal(t, 2, tc.GetTokenCount(0, "eight ch"))
}

func TestBaseProvider_ModelAccessors(t *testing.T) {
	var b BaseProvider
	b.SetModel("gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", b.GetModel())
}
