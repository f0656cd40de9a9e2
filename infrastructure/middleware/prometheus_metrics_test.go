package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	labels := map[string]string{
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"status":   "success",
	}
	pm.RecordCounter("generation_requests_total", 1, labels)
	pm.RecordCounter("generation_requests_total", 1, labels)

	got := testutil.ToFloat64(pm.generationCounter.WithLabelValues(
		"openai", "gpt-4o-mini", "success",
	))
	assert.Equal(t, 2.0, got)
}

func TestPrometheusMetrics_RecordCounterTokens(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordCounter("generation_tokens_total", 150, map[string]string{
		"provider":   "anthropic",
		"model":      "claude-3-5-sonnet-20241022",
		"token_type": "input",
	})

	got := testutil.ToFloat64(pm.tokensCounter.WithLabelValues(
		"anthropic", "claude-3-5-sonnet-20241022", "input",
	))
	assert.Equal(t, 150.0, got)
}

func TestPrometheusMetrics_RecordCounterFallsBackToOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordCounter("artifact_writes", 1, nil)

	got := testutil.ToFloat64(pm.operationCounter.WithLabelValues(
		"artifact_writes", "success",
	))
	assert.Equal(t, 1.0, got)
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordGauge("evaluations_in_flight", 4, nil)
	pm.RecordGauge("evaluations_in_flight", 2, nil)

	got := testutil.ToFloat64(pm.systemGauges.WithLabelValues("evaluations_in_flight"))
	assert.Equal(t, 2.0, got)
}

func TestPrometheusMetrics_RecordLatencyRoutesGenerationLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordLatency("generate", 250*time.Millisecond, map[string]string{
		"provider": "google",
		"model":    "gemini-2.0-flash-exp",
	})
	pm.RecordLatency("search", 10*time.Millisecond, nil)

	count, err := testutil.GatherAndCount(reg,
		"generation_latency_seconds", "harness_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPrometheusMetrics_RecordHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordHistogram("generation_latency_seconds", 0.5, map[string]string{
		"provider": "openai",
		"model":    "gpt-4o-mini",
		"status":   "error",
	})

	count, err := testutil.GatherAndCount(reg, "generation_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
