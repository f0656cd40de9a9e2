package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// tracedGenerator wraps each generation step in an OpenTelemetry span
// carrying model, history size, and outcome attributes.
type tracedGenerator struct {
	next   CoreGenerator
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that traces requests under the
// given service name.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)

	return func(next CoreGenerator) CoreGenerator {
		return &tracedGenerator{
			next:   next,
			tracer: tracer,
		}
	}
}

// DoGenerate executes the request within a trace span.
func (t *tracedGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	ctx, span := t.tracer.Start(ctx, "llm.generate_structured",
		trace.WithAttributes(
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.history_messages", len(req.History)),
			attribute.Int("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	resp, err := t.next.DoGenerate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("llm.tool_call", resp.Kind == ports.KindToolCall),
		attribute.Int64("llm.tokens.input", resp.Usage.InputTokens),
		attribute.Int64("llm.tokens.output", resp.Usage.OutputTokens),
	)
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (t *tracedGenerator) GetModel() string { return t.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (t *tracedGenerator) SetModel(m string) { t.next.SetModel(m) }
