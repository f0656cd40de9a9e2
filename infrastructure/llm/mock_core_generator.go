package llm

import (
	"context"
	"sync"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// mockCoreGenerator is a configurable CoreGenerator for middleware tests.
// It returns canned responses or errors in order and records every call.
type mockCoreGenerator struct {
	mu        sync.Mutex
	model     string
	responses []*ports.GenerateResponse
	errs      []error
	calls     int
}

func newMockCoreGenerator(model string) *mockCoreGenerator {
	return &mockCoreGenerator{model: model}
}

// enqueue adds one scripted step: resp on success or err on failure.
func (m *mockCoreGenerator) enqueue(resp *ports.GenerateResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errs = append(m.errs, err)
}

func (m *mockCoreGenerator) DoGenerate(_ context.Context, _ ports.GenerateRequest) (*ports.GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	if i < 0 {
		return &ports.GenerateResponse{Kind: ports.KindFinal}, nil
	}
	return m.responses[i], m.errs[i]
}

func (m *mockCoreGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockCoreGenerator) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

func (m *mockCoreGenerator) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}
