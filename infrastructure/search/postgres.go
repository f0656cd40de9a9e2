// Package search provides retrieval backends implementing ports.Searcher.
// The Postgres implementation runs weighted full-text queries over an
// indexed documentation corpus.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// DefaultSearchLimit caps result counts when a request does not specify
// one.
const DefaultSearchLimit = 5

// searchableFields whitelists the columns that boosts and filters may
// reference. Field names arrive from configuration, never from model
// output, but interpolating an unchecked name into SQL is still off the
// table.
var searchableFields = map[string]bool{
	"title":    true,
	"section":  true,
	"content":  true,
	"filename": true,
}

// PostgresSearcher implements ports.Searcher with Postgres full-text
// search. Documents live in a documents table with one row per section:
// (filename, title, section, content, tsv), where tsv is a stored
// tsvector over title, section, and content.
type PostgresSearcher struct {
	pool *pgxpool.Pool
}

var _ ports.Searcher = (*PostgresSearcher)(nil)

// NewPostgresSearcher connects to the database and verifies the
// connection. The connection string uses pgx's URL or DSN format.
func NewPostgresSearcher(ctx context.Context, connStr string) (*PostgresSearcher, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, domain.NewConfigurationError("search database", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.NewConfigurationError("search database", err)
	}

	return &PostgresSearcher{pool: pool}, nil
}

// Initialize creates the documents table and full-text index if they do
// not exist.
func (s *PostgresSearcher) Initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS documents (
            id SERIAL PRIMARY KEY,
            filename TEXT NOT NULL,
            title TEXT NOT NULL,
            section TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL,
            tsv tsvector GENERATED ALWAYS AS (
                setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
                setweight(to_tsvector('english', coalesce(section, '')), 'B') ||
                setweight(to_tsvector('english', coalesce(content, '')), 'C')
            ) STORED
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS documents_tsv_idx ON documents USING GIN (tsv)
    `)
	if err != nil {
		return fmt.Errorf("failed to create full-text index: %w", err)
	}

	return nil
}

// StoreDocument inserts one document section.
func (s *PostgresSearcher) StoreDocument(ctx context.Context, filename, title, section, content string) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO documents (filename, title, section, content)
        VALUES ($1, $2, $3, $4)
    `, filename, title, section, content)
	return err
}

// Search runs a weighted full-text query. Boosts add per-field rank
// components on top of the base document rank; filters constrain matches
// by exact column equality.
func (s *PostgresSearcher) Search(ctx context.Context, req ports.SearchRequest) ([]ports.SearchHit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query, args, err := buildSearchQuery(req, limit)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var hits []ports.SearchHit
	for rows.Next() {
		var hit ports.SearchHit
		if err := rows.Scan(&hit.Title, &hit.Filename, &hit.Section, &hit.Content, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search hits: %w", err)
	}

	return hits, nil
}

// buildSearchQuery assembles the ranked full-text statement. The query
// text itself always travels as a bind parameter; only whitelisted field
// names are interpolated.
func buildSearchQuery(req ports.SearchRequest, limit int) (string, []any, error) {
	args := []any{req.Query}

	var score strings.Builder
	score.WriteString("ts_rank(tsv, websearch_to_tsquery('english', $1))")

	for field, weight := range req.Boosts {
		if !searchableFields[field] {
			return "", nil, fmt.Errorf("unknown boost field: %s", field)
		}
		args = append(args, weight)
		fmt.Fprintf(&score,
			" + $%d * ts_rank(to_tsvector('english', %s), websearch_to_tsquery('english', $1))",
			len(args), field)
	}

	var where strings.Builder
	where.WriteString("tsv @@ websearch_to_tsquery('english', $1)")

	for field, value := range req.Filters {
		if !searchableFields[field] {
			return "", nil, fmt.Errorf("unknown filter field: %s", field)
		}
		args = append(args, value)
		fmt.Fprintf(&where, " AND %s = $%d", field, len(args))
	}

	args = append(args, limit)
	query := fmt.Sprintf(`
        SELECT title, filename, section, content, %s AS score
        FROM documents
        WHERE %s
        ORDER BY score DESC
        LIMIT $%d
    `, score.String(), where.String(), len(args))

	return query, args, nil
}

// Close releases the connection pool.
func (s *PostgresSearcher) Close() { s.pool.Close() }
