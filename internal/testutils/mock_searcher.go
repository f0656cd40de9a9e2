package testutils

import (
	"context"
	"sync"

	"github.com/ahrav/go-sleuth/internal/ports"
)

var _ ports.Searcher = (*MockSearcher)(nil)

// MockSearcher implements ports.Searcher with a fixed hit list and a
// record of every request it served. Safe for concurrent use.
type MockSearcher struct {
	mu       sync.Mutex
	hits     []ports.SearchHit
	err      error
	requests []ports.SearchRequest
}

// NewMockSearcher creates a searcher returning a small fixed set of
// scored fragments.
func NewMockSearcher() *MockSearcher {
	return &MockSearcher{
		hits: []ports.SearchHit{
			{
				Title:    "LLM Judges",
				Filename: "docs/llm_judge.md",
				Section:  "Judges",
				Content:  "An LLM judge scores generated answers against rubric criteria.",
				Score:    12.4,
			},
			{
				Title:    "Introduction",
				Filename: "docs/introduction.md",
				Section:  "Overview",
				Content:  "Evaluation compares model output quality across configurations.",
				Score:    8.1,
			},
		},
	}
}

// WithHits replaces the fixed hit list.
func (m *MockSearcher) WithHits(hits ...ports.SearchHit) *MockSearcher {
	m.hits = hits
	return m
}

// WithError makes every search fail with err.
func (m *MockSearcher) WithError(err error) *MockSearcher {
	m.err = err
	return m
}

// Requests returns a copy of every request served so far.
func (m *MockSearcher) Requests() []ports.SearchRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ports.SearchRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Search records the request and returns the fixed hits, truncated to the
// request limit.
func (m *MockSearcher) Search(ctx context.Context, req ports.SearchRequest) ([]ports.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	err := m.err
	hits := m.hits
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}

	out := make([]ports.SearchHit, len(hits))
	copy(out, hits)
	return out, nil
}
