package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned by the evaluation pipeline.
var (
	// ErrNoFinalOutput indicates that a run ended without the generation
	// step ever producing a final article, even after forced finalization.
	ErrNoFinalOutput = errors.New("no final output produced")

	// ErrUnknownTool indicates that the generation step requested a tool
	// the runner does not expose.
	ErrUnknownTool = errors.New("unknown tool requested")
)

// Capability names used by CapabilityError to identify which external
// collaborator failed.
const (
	CapabilityGenerate = "generate"
	CapabilitySearch   = "search"
)

// CapabilityError wraps a failure of one of the consumed capabilities
// (generation or retrieval) during a single run. It is always recorded
// against the question being processed and never propagates to sibling
// workers.
type CapabilityError struct {
	// Capability is CapabilityGenerate or CapabilitySearch.
	Capability string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s capability: %v", e.Capability, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As inspection.
func (e *CapabilityError) Unwrap() error { return e.Err }

// NewCapabilityError wraps err as a failure of the named capability.
func NewCapabilityError(capability string, err error) *CapabilityError {
	return &CapabilityError{Capability: capability, Err: err}
}

// ConfigurationError indicates an invalid pipeline configuration such as a
// missing ground-truth file or a malformed rubric. Configuration errors
// are fatal at pipeline start, before any work is dispatched.
type ConfigurationError struct {
	// Subject names what was misconfigured (file path, option name).
	Subject string

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Subject, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As inspection.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a fatal configuration problem with
// the given subject.
func NewConfigurationError(subject string, err error) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Err: err}
}

// PartialWriteError indicates that a persisted artifact exists but is
// truncated or corrupt. Callers must either re-run the producing stage or
// surface the error; silently merging against a partial artifact is never
// acceptable.
type PartialWriteError struct {
	// Path is the artifact that failed to load.
	Path string

	// Err is the underlying decode failure.
	Err error
}

// Error implements the error interface.
func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("artifact %s is truncated or corrupt: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As inspection.
func (e *PartialWriteError) Unwrap() error { return e.Err }

// NewPartialWriteError wraps err as a truncated-or-corrupt artifact at
// the given path.
func NewPartialWriteError(path string, err error) *PartialWriteError {
	return &PartialWriteError{Path: path, Err: err}
}
