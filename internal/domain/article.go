package domain

import (
	"fmt"
	"strings"
)

// DefaultReferenceBaseURL is the link prefix used when rendering article
// references to markdown and no corpus-specific base URL is configured.
const DefaultReferenceBaseURL = "https://github.com/evidentlyai/docs/blob/main"

// Reference is a citation to a source document in the corpus.
type Reference struct {
	Title    string `json:"title"`
	Filename string `json:"filename"`
}

// Section is one titled portion of an article, with the references the
// agent used to write that section.
type Section struct {
	Heading    string      `json:"heading"`
	Content    string      `json:"content"`
	References []Reference `json:"references"`
}

// Article is the agent's final structured answer: a titled write-up
// composed of sections with per-section citations plus an overall
// reference list. FoundAnswer is false when the agent exhausted its
// search budget without finding an answer.
type Article struct {
	FoundAnswer bool        `json:"found_answer"`
	Title       string      `json:"title"`
	Sections    []Section   `json:"sections"`
	References  []Reference `json:"references"`
}

// Format renders the article as markdown, linking every reference under
// baseURL. An empty baseURL falls back to DefaultReferenceBaseURL.
func (a Article) Format(baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultReferenceBaseURL
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Title)

	for _, section := range a.Sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Heading)
		fmt.Fprintf(&b, "%s\n\n", section.Content)
		if len(section.References) > 0 {
			b.WriteString("### References\n")
			for _, ref := range section.References {
				fmt.Fprintf(&b, "- [%s](%s/%s)\n", ref.Title, baseURL, ref.Filename)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## References\n")
	for _, ref := range a.References {
		fmt.Fprintf(&b, "- [%s](%s/%s)\n", ref.Title, baseURL, ref.Filename)
	}

	return b.String()
}

// Validate checks the reference-consistency property: an article that
// claims to have found an answer must cite only references with non-empty
// titles and filenames, in its sections and in the overall list.
// Articles with FoundAnswer set to false are exempt since they carry no
// answer to back up.
func (a Article) Validate() error {
	if !a.FoundAnswer {
		return nil
	}

	for i, section := range a.Sections {
		for j, ref := range section.References {
			if ref.Title == "" || ref.Filename == "" {
				return fmt.Errorf("section %d reference %d: title and filename are required", i, j)
			}
		}
	}

	for i, ref := range a.References {
		if ref.Title == "" || ref.Filename == "" {
			return fmt.Errorf("article reference %d: title and filename are required", i)
		}
	}

	return nil
}
