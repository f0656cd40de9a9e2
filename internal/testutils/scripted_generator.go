package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

var _ ports.Generator = (*ScriptedGenerator)(nil)

// ScriptedGenerator implements ports.Generator by returning canned final
// outputs in order, one per call. It is used to test the judge pipeline,
// where every generation step is a single structured checklist call.
type ScriptedGenerator struct {
	mu sync.Mutex

	model  string
	finals []string
	next   int
	usage  domain.TokenUsage
}

// NewScriptedGenerator creates a generator that returns the given JSON
// payloads as final outputs, in order. Once exhausted, the last payload
// repeats.
func NewScriptedGenerator(model string, finals ...string) *ScriptedGenerator {
	return &ScriptedGenerator{
		model:  model,
		finals: finals,
		usage:  domain.TokenUsage{InputTokens: 50, OutputTokens: 10},
	}
}

// WithUsage sets the usage attached to each response.
func (s *ScriptedGenerator) WithUsage(usage domain.TokenUsage) *ScriptedGenerator {
	s.usage = usage
	return s
}

// Model returns the mock model identifier.
func (s *ScriptedGenerator) Model() string { return s.model }

// GenerateStructured returns the next scripted final output.
func (s *ScriptedGenerator) GenerateStructured(
	ctx context.Context,
	_ ports.GenerateRequest,
) (*ports.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.finals) == 0 {
		return nil, fmt.Errorf("scripted generator has no responses")
	}

	payload := s.finals[min(s.next, len(s.finals)-1)]
	s.next++

	return &ports.GenerateResponse{
		Kind:  ports.KindFinal,
		Final: json.RawMessage(payload),
		Usage: s.usage,
	}, nil
}
