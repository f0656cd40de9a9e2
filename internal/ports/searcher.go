package ports

import "context"

// SearchRequest is a single retrieval query against the documentation
// corpus.
type SearchRequest struct {
	// Query is the free-text search query.
	Query string

	// Boosts maps field names to relative weights applied during ranking.
	Boosts map[string]float64

	// Filters restricts results to documents whose named field equals the
	// given value.
	Filters map[string]string

	// Limit caps the number of returned hits.
	Limit int
}

// SearchHit is one scored document fragment returned by the retrieval
// capability, ordered by descending score within a result set.
type SearchHit struct {
	Title    string  `json:"title"`
	Filename string  `json:"filename"`
	Section  string  `json:"section,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

// Searcher is the consumed retrieval capability: return the top scored
// fragments for a query with optional field boosts and filters.
// Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)
}
