// Package domain contains pure, dependency-free domain models and types
// for the search-agent evaluation harness.
package domain

// MessageKind discriminates the payload carried by a Message.
// Transcripts are serialized with this kind as the discriminator, so the
// string values are part of the persisted result-set format.
type MessageKind string

const (
	// KindSystem carries instructions injected by the harness itself,
	// such as the forced-finalization prompt appended by the history guard.
	KindSystem MessageKind = "system"

	// KindUser carries text supplied by the user, including the original
	// question that starts a run.
	KindUser MessageKind = "user"

	// KindToolCall records a structured tool-invocation request emitted by
	// the generation step.
	KindToolCall MessageKind = "tool-call"

	// KindToolResult records the payload returned by a tool invocation.
	KindToolResult MessageKind = "tool-result"

	// KindFinal records the assistant's final structured output for a run.
	KindFinal MessageKind = "assistant-final"
)

// Message is a single entry in a run's transcript. Exactly the fields
// appropriate to its Kind are populated: Content for text-bearing kinds,
// ToolName/CallID/Args for tool calls, ToolName/CallID/Content for tool
// results.
type Message struct {
	// Kind discriminates how the remaining fields should be interpreted.
	Kind MessageKind `json:"kind"`

	// Content holds the text payload for user, system, tool-result, and
	// final messages.
	Content string `json:"content,omitempty"`

	// ToolName identifies the tool for tool-call and tool-result messages.
	ToolName string `json:"tool_name,omitempty"`

	// CallID correlates a tool-result with the tool-call that produced it.
	// Providers that assign invocation IDs round-trip them through here.
	CallID string `json:"call_id,omitempty"`

	// Args holds the structured arguments of a tool-call message.
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallRecord captures a single tool invocation extracted from a
// transcript. Records are immutable once created and ordered by emission
// time within their transcript.
type ToolCallRecord struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// Transcript is the ordered message history of a single agent run.
// It is append-only during a run and owned exclusively by that run;
// mutating helpers return a new slice rather than modifying the receiver.
type Transcript []Message

// Append returns a new Transcript with msg added at the end.
// The receiver is never modified, so callers holding an older snapshot
// of the transcript are unaffected.
func (t Transcript) Append(msg Message) Transcript {
	out := make(Transcript, len(t), len(t)+1)
	copy(out, t)
	return append(out, msg)
}

// CountToolCalls returns the number of tool-call messages whose tool name
// equals tool. An empty transcript yields zero.
func (t Transcript) CountToolCalls(tool string) int {
	n := 0
	for _, m := range t {
		if m.Kind == KindToolCall && m.ToolName == tool {
			n++
		}
	}
	return n
}

// ToolCalls extracts every tool-call message as a ToolCallRecord,
// preserving emission order.
func (t Transcript) ToolCalls() []ToolCallRecord {
	records := make([]ToolCallRecord, 0, len(t))
	for _, m := range t {
		if m.Kind != KindToolCall {
			continue
		}
		records = append(records, ToolCallRecord{ToolName: m.ToolName, Arguments: m.Args})
	}
	return records
}

// Last returns the final message of the transcript and true, or a zero
// Message and false when the transcript is empty.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}
