// Package testutils provides deterministic in-memory implementations of
// the generation and retrieval capabilities for testing the evaluation
// pipeline without network access.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

var _ ports.Generator = (*MockGenerator)(nil)

// MockGenerator implements ports.Generator with a scripted behavior:
// it emits a configurable number of search tool calls and then a final
// article. It is safe for concurrent use; each run tracks its progress
// from the transcript it receives, not from shared state, so concurrent
// runs never interfere.
type MockGenerator struct {
	mu sync.Mutex

	// model is the identifier reported for usage attribution.
	model string

	// searches is how many tool calls to emit before finalizing.
	searches int

	// queries are cycled through as tool-call arguments.
	queries []string

	// article is the final output; defaults to a small two-section
	// article when nil.
	article *domain.Article

	// usagePerCall is attached to every response.
	usagePerCall domain.TokenUsage

	// err, when set, is returned by every call.
	err error

	// obeyGuard controls whether a forced-finalization instruction in the
	// transcript short-circuits remaining scripted searches. Disabling it
	// simulates a model that ignores the guard.
	obeyGuard bool

	// calls counts generation invocations across all runs.
	calls int

	// lastInstructions records the instructions from the most recent
	// request, for asserting what the harness tells the model.
	lastInstructions string
}

// NewMockGenerator creates a generator that performs `searches` tool
// calls and then returns a default article.
func NewMockGenerator(model string, searches int) *MockGenerator {
	return &MockGenerator{
		model:        model,
		searches:     searches,
		queries:      []string{"llm evaluation basics", "judge rubric design", "metric configuration"},
		usagePerCall: domain.TokenUsage{InputTokens: 100, OutputTokens: 20},
		obeyGuard:    true,
	}
}

// WithArticle sets the final article returned after the scripted searches.
func (m *MockGenerator) WithArticle(article domain.Article) *MockGenerator {
	m.article = &article
	return m
}

// WithQueries sets the tool-call query sequence.
func (m *MockGenerator) WithQueries(queries ...string) *MockGenerator {
	m.queries = queries
	return m
}

// WithUsage sets the usage attached to each generation response.
func (m *MockGenerator) WithUsage(usage domain.TokenUsage) *MockGenerator {
	m.usagePerCall = usage
	return m
}

// WithError makes every generation call fail with err.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.err = err
	return m
}

// IgnoreGuard makes the mock keep requesting tool calls even after the
// history guard injects the forced-finalization instruction.
func (m *MockGenerator) IgnoreGuard() *MockGenerator {
	m.obeyGuard = false
	return m
}

// Calls returns the total number of generation invocations observed.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastInstructions returns the instructions from the most recent
// generation request.
func (m *MockGenerator) LastInstructions() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInstructions
}

// Model returns the mock model identifier.
func (m *MockGenerator) Model() string { return m.model }

// GenerateStructured emits the next scripted step for the run represented
// by req.History: a tool call while fewer than the scripted number of
// searches appear in the transcript, the final article otherwise.
func (m *MockGenerator) GenerateStructured(
	ctx context.Context,
	req ports.GenerateRequest,
) (*ports.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	m.lastInstructions = req.Instructions
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	tool := ""
	if len(req.Tools) > 0 {
		tool = req.Tools[0].Name
	}

	done := req.History.CountToolCalls(tool)
	forced := false
	if last, ok := req.History.Last(); ok && last.Kind == domain.KindUser && done > 0 {
		// The guard appends a user message after tool results; a trailing
		// user message mid-run is the forced-finalization instruction.
		forced = true
	}

	if done < m.searches && !(forced && m.obeyGuard) {
		query := m.queries[done%len(m.queries)]
		return &ports.GenerateResponse{
			Kind:     ports.KindToolCall,
			ToolCall: &domain.ToolCallRecord{ToolName: tool, Arguments: map[string]any{"query": query}},
			CallID:   fmt.Sprintf("call_%d", done+1),
			Usage:    m.usagePerCall,
		}, nil
	}

	article := m.article
	if article == nil {
		article = defaultArticle()
	}
	raw, err := json.Marshal(article)
	if err != nil {
		return nil, err
	}

	return &ports.GenerateResponse{
		Kind:  ports.KindFinal,
		Final: raw,
		Usage: m.usagePerCall,
	}, nil
}

// defaultArticle builds a small well-formed article with references, used
// when no explicit article is scripted.
func defaultArticle() *domain.Article {
	return &domain.Article{
		FoundAnswer: true,
		Title:       "LLM Evaluation",
		Sections: []domain.Section{
			{
				Heading: "Overview",
				Content: "LLM evaluation measures the quality of model outputs against defined criteria.",
				References: []domain.Reference{
					{Title: "Introduction", Filename: "docs/introduction.md"},
				},
			},
			{
				Heading: "Example",
				Content: "Configure a judge like this:\n```python\njudge = LLMEval(\"correctness\")\n```\n",
				References: []domain.Reference{
					{Title: "LLM Judges", Filename: "docs/llm_judge.md"},
				},
			},
		},
		References: []domain.Reference{
			{Title: "Introduction", Filename: "docs/introduction.md"},
			{Title: "LLM Judges", Filename: "docs/llm_judge.md"},
		},
	}
}
