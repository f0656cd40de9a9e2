package domain

// Question is a single ground-truth query driving one agent run.
// The metadata fields are optional; they come from the question-generation
// process and are carried through for inspection and judging.
type Question struct {
	// Text is the query the agent is asked to answer.
	Text string `json:"question"`

	// Filename is the source document the question was generated from.
	Filename string `json:"filename,omitempty"`

	// RelevantLines points at the line range of the source document most
	// relevant to the question, e.g. "lines 45-67".
	RelevantLines string `json:"relevant_lines,omitempty"`

	// Difficulty is the assumed knowledge level of the asker
	// (beginner, intermediate, advanced).
	Difficulty string `json:"difficulty,omitempty"`

	// Intent distinguishes conceptual queries ("text") from queries
	// looking for implementation examples ("code").
	Intent string `json:"intent,omitempty"`

	// SummaryAnswer is a short reference answer used by deterministic
	// judge checks when present.
	SummaryAnswer string `json:"summary_answer,omitempty"`
}

// TokenUsage counts tokens consumed by generation calls.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add returns the sum of two usage counts.
func (u TokenUsage) Add(delta TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + delta.InputTokens,
		OutputTokens: u.OutputTokens + delta.OutputTokens,
	}
}

// EvaluationResult is the persisted outcome of one agent run. Exactly one
// result exists per submitted question, whether the run succeeded or
// failed; failures carry the error text in Error and no article.
type EvaluationResult struct {
	// Question is the ground-truth question this result answers,
	// retained in full so judge output can be re-correlated downstream.
	Question Question `json:"question"`

	// Answer is the markdown rendering of the article.
	Answer string `json:"answer,omitempty"`

	// Article is the agent's structured final output.
	Article *Article `json:"article,omitempty"`

	// Transcript is the complete message history of the run.
	Transcript Transcript `json:"messages"`

	// ToolCallCount is the number of search invocations the run made.
	ToolCallCount int `json:"tool_call_count"`

	// Usage is the cumulative token consumption across the run's
	// generation calls.
	Usage TokenUsage `json:"token_usage"`

	// Error holds the failure description for runs that did not complete.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the run produced a failure marker instead of an
// article.
func (r EvaluationResult) Failed() bool { return r.Error != "" }

// JudgeCheck is a single pass/fail verdict for one rubric criterion.
type JudgeCheck struct {
	Name string `json:"check_name"`
	Pass bool   `json:"check_pass"`
}

// JudgeResult holds the judge's verdicts for one evaluation result,
// keyed by the original question for merging back onto the result set.
type JudgeResult struct {
	Question Question     `json:"question"`
	Checks   []JudgeCheck `json:"checks"`

	// Error holds the failure description when the judge call itself
	// failed; Checks is empty in that case.
	Error string `json:"error,omitempty"`
}

// Passed returns how many checks passed.
func (j JudgeResult) Passed() int {
	n := 0
	for _, c := range j.Checks {
		if c.Pass {
			n++
		}
	}
	return n
}
