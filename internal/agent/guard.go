// Package agent implements the search agent: the conversation history
// guard that bounds the number of retrieval calls, and the runner that
// drives the generate/search loop for a single question.
package agent

import (
	"fmt"

	"github.com/ahrav/go-sleuth/internal/domain"
)

// HistoryGuard bounds the number of searches in a single run. Once the
// transcript contains Threshold tool calls for the guarded tool, Enforce
// appends a synthetic user message instructing the generation step to
// stop calling tools and produce the final article.
//
// Enforce is a pure transform: it never mutates the input transcript and
// never calls the generation capability itself. It is idempotent, so
// invoking it once per generation step is safe even after the finish
// instruction has already been injected.
type HistoryGuard struct {
	// Tool is the tool name whose invocations are counted.
	Tool string

	// Threshold is the invocation count at which finalization is forced.
	Threshold int
}

// finishPrompt builds the synthetic instruction appended when the search
// budget is exhausted.
func (g HistoryGuard) finishPrompt() string {
	return fmt.Sprintf(
		"System message: the maximum number of %s calls (%d) has been reached. "+
			"Do not call any more tools. Produce the final article now.",
		g.Tool, g.Threshold,
	)
}

// Enforce returns the transcript to feed into the next generation step.
// When fewer than Threshold matching tool calls have occurred, or the
// finish instruction is already the most recent message, the input is
// returned unchanged.
func (g HistoryGuard) Enforce(history domain.Transcript) domain.Transcript {
	if len(history) == 0 {
		return history
	}

	if history.CountToolCalls(g.Tool) < g.Threshold {
		return history
	}

	prompt := g.finishPrompt()
	if last, ok := history.Last(); ok && last.Kind == domain.KindUser && last.Content == prompt {
		return history
	}

	return history.Append(domain.Message{Kind: domain.KindUser, Content: prompt})
}
