package llm

import (
	"context"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// usageRecordingGenerator records per-model token usage after every
// successful generation step. Recording happens in middleware, explicitly
// in the call path, so usage accounting never depends on patching
// provider internals.
type usageRecordingGenerator struct {
	next     CoreGenerator
	recorder ports.UsageRecorder
}

// UsageMiddleware creates middleware that records each successful call's
// token usage into the recorder, attributed to the model that served it.
// Failed calls record nothing.
func UsageMiddleware(recorder ports.UsageRecorder) Middleware {
	return func(next CoreGenerator) CoreGenerator {
		return &usageRecordingGenerator{
			next:     next,
			recorder: recorder,
		}
	}
}

// DoGenerate forwards the request and records usage on success.
func (u *usageRecordingGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	resp, err := u.next.DoGenerate(ctx, req)
	if err != nil {
		return nil, err
	}

	if u.recorder != nil {
		u.recorder.Record(u.next.GetModel(), resp.Usage)
	}
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (u *usageRecordingGenerator) GetModel() string { return u.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (u *usageRecordingGenerator) SetModel(m string) { u.next.SetModel(m) }
