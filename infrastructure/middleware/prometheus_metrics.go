// Package middleware provides cross-cutting concerns for the evaluation
// harness.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It exposes generation traffic, token throughput, and
// evaluation progress for the harness.
type PrometheusMetrics struct {
	generationLatency *prometheus.HistogramVec
	generationCounter *prometheus.CounterVec
	tokensCounter     *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	operationCounter  *prometheus.CounterVec
	systemGauges      *prometheus.GaugeVec
}

// Compile-time verification that PrometheusMetrics implements
// MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a new PrometheusMetrics instance and
// registers all required metrics in the given registry. A nil registerer
// uses the global Prometheus registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		generationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "generation_latency_seconds",
				Help:    "Latency of model generation requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		generationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_requests_total",
				Help: "Total number of model generation requests by outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		tokensCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_tokens_total",
				Help: "Total tokens consumed by model generation requests.",
			},
			[]string{"provider", "model", "token_type"},
		),

		// General harness metrics for operations outside the generation
		// path, such as retrieval and artifact persistence.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harness_operation_duration_seconds",
				Help:    "Execution time of harness operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harness_operations_total",
				Help: "Total number of harness operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harness_system_state",
				Help: "Current harness state values, such as evaluation progress.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string, duration time.Duration, labels map[string]string,
) {
	if provider, ok := labels["provider"]; ok {
		pm.generationLatency.WithLabelValues(
			provider, labels["model"], statusLabel(labels),
		).Observe(duration.Seconds())
		return
	}
	pm.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "generation_requests_total":
		pm.generationCounter.WithLabelValues(
			labels["provider"], labels["model"], statusLabel(labels),
		).Add(value)
	case "generation_tokens_total":
		pm.tokensCounter.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, statusLabel(labels)).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	if metric == "generation_latency_seconds" {
		pm.generationLatency.WithLabelValues(
			labels["provider"], labels["model"], statusLabel(labels),
		).Observe(value)
		return
	}
	pm.operationLatency.WithLabelValues(metric).Observe(value)
}

func statusLabel(labels map[string]string) string {
	if status, ok := labels["status"]; ok {
		return status
	}
	return "success"
}
