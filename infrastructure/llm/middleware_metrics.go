package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// metricsGenerator collects request metrics: latency, request counts by
// outcome, and token throughput per provider and model.
type metricsGenerator struct {
	next      CoreGenerator
	provider  string
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that records request metrics into
// the collector. The provider name is used as-is for the provider label,
// so custom model identifiers stay correctly attributed.
func MetricsMiddleware(provider string, collector ports.MetricsCollector) Middleware {
	return func(next CoreGenerator) CoreGenerator {
		return &metricsGenerator{
			next:      next,
			provider:  provider,
			collector: collector,
		}
	}
}

// DoGenerate executes the request while recording latency, outcome, and
// token counts.
func (m *metricsGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	start := time.Now()
	resp, err := m.next.DoGenerate(ctx, req)

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   "success",
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrCircuitOpen):
			labels["status"] = "circuit_open"
		case ctx.Err() == context.DeadlineExceeded:
			labels["status"] = "timeout"
		default:
			labels["status"] = "error"
		}
	}

	if m.collector != nil {
		m.collector.RecordHistogram("generation_latency_seconds", time.Since(start).Seconds(), labels)
		m.collector.RecordCounter("generation_requests_total", 1, labels)

		if err == nil {
			labels["token_type"] = "input"
			m.collector.RecordCounter("generation_tokens_total", float64(resp.Usage.InputTokens), labels)

			labels["token_type"] = "output"
			m.collector.RecordCounter("generation_tokens_total", float64(resp.Usage.OutputTokens), labels)
		}
	}

	return resp, err
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsGenerator) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsGenerator) SetModel(model string) { m.next.SetModel(model) }
