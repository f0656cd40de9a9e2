// Package ports defines the interfaces between the evaluation harness and
// its external collaborators: the structured-output generation capability
// and the document retrieval capability. Implementations live under
// infrastructure/; the core orchestration code depends only on these
// interfaces.
package ports

import (
	"context"
	"encoding/json"

	"github.com/ahrav/go-sleuth/internal/domain"
)

// ToolSchema declares a tool the generation step may invoke.
// Parameters is a JSON Schema document describing the tool's arguments.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// OutputSchema declares the structured final output the generation step
// must produce when it stops calling tools. Schema is a JSON Schema
// document for the output object.
type OutputSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// GenerateRequest carries everything a provider needs for one generation
// step: system instructions, the conversation so far, the tools the model
// may call, and the schema of the final output.
type GenerateRequest struct {
	// Instructions is the system prompt for the conversation.
	Instructions string

	// History is the transcript accumulated so far, ordered oldest first.
	History domain.Transcript

	// Tools lists the tool schemas available to the model.
	Tools []ToolSchema

	// Output describes the required structure of the final answer.
	Output OutputSchema

	// Options holds provider-specific knobs such as temperature or
	// max_tokens. Unknown keys are ignored by providers.
	Options map[string]any
}

// ResponseKind tags the two possible outcomes of a generation step.
// The explicit tag replaces runtime capability probing: callers switch on
// Kind, never on the dynamic type of a payload.
type ResponseKind int

const (
	// KindToolCall means the model requested a tool invocation.
	KindToolCall ResponseKind = iota

	// KindFinal means the model produced its final structured output.
	KindFinal
)

// GenerateResponse is the tagged union returned by a generation step.
// Exactly one of ToolCall or Final is populated, according to Kind.
// Usage is attached to every successful response.
type GenerateResponse struct {
	Kind ResponseKind

	// ToolCall is set when Kind is KindToolCall.
	ToolCall *domain.ToolCallRecord

	// CallID is the provider-assigned invocation ID for the tool call,
	// round-tripped into the transcript so the follow-up tool result can
	// be correlated.
	CallID string

	// Final is the raw JSON of the final output when Kind is KindFinal.
	// It conforms to the request's OutputSchema.
	Final json.RawMessage

	// Usage reports the tokens consumed by this call.
	Usage domain.TokenUsage
}

// Generator is the consumed generation capability: produce either a tool
// invocation or a schema-conforming final output given instructions and a
// message history. Implementations must be safe for concurrent use; every
// call is independent.
type Generator interface {
	// GenerateStructured performs one generation step.
	// Schema-nonconforming output and transport failures both surface as
	// errors; no partial response is returned alongside an error.
	GenerateStructured(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Model returns the model identifier used by this generator,
	// for usage attribution and logging.
	Model() string
}

// UsageRecorder accumulates per-model token usage. The ledger in
// internal/pricing implements it; generation middleware records into it
// after every successful call. Implementations must be safe for
// concurrent use.
type UsageRecorder interface {
	Record(model string, usage domain.TokenUsage)
}
