package agent

import (
	"bytes"
	"strings"
	"text/template"
)

// instructionsTemplate renders the system prompt for the search agent.
// The minimum/maximum search policy lives here as an instruction-level
// contract; the history guard provides the mechanical backstop at the
// maximum, and the minimum is verified by the test suite rather than
// rejected by the runner.
var instructionsTemplate = template.Must(template.New("instructions").Parse(strings.TrimSpace(`
You are a search assistant for the {{.CorpusName}} documentation.
{{if .CorpusDescription}}
{{.CorpusDescription}}
{{end}}
Your task is to help users find accurate, relevant information from the
documentation.

Requirements:

- For every user query, perform at least {{.MinSearches}} and at most {{.MaxSearches}}
  separate searches to gather enough context and verify accuracy.
- If you cannot answer the user's question after {{.MaxSearches}} searches,
  set found_answer to false.
- Each search must use a different angle, phrasing, or keyword variation
  of the user's query.
- Keep all searches centered on technical or conceptual details from the
  documentation.
- The corpus contains only {{.CorpusName}}-related content, so do not
  include "{{.CorpusName}}" in your search queries.
{{- range .ExcludeTerms}}
- Never use the term "{{.}}" in a search query.
{{- end}}
- After performing all searches, write a concise, accurate answer that
  synthesizes the findings.
- For each section, include references listing all the sources you used
  to write that section.
- Do not perform more than {{.MaxSearches}} searches per query.
`)))

// buildInstructions renders the system prompt for the configured corpus
// and search policy.
func buildInstructions(cfg RunnerConfig) (string, error) {
	var buf bytes.Buffer
	data := struct {
		CorpusName        string
		CorpusDescription string
		MinSearches       int
		MaxSearches       int
		ExcludeTerms      []string
	}{
		CorpusName:        cfg.CorpusName,
		CorpusDescription: cfg.CorpusDescription,
		MinSearches:       cfg.MinSearches,
		MaxSearches:       cfg.MaxSearches,
		ExcludeTerms:      cfg.ExcludeTerms,
	}
	if err := instructionsTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
