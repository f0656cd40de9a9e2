// Package pricing tracks token usage across generation calls and converts
// it into monetary cost via a static price table.
package pricing

import (
	"sync"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

var _ ports.UsageRecorder = (*Ledger)(nil)

// Ledger is the process-wide accumulator of token usage, keyed by model
// identifier. It is the only state mutated by multiple concurrent workers
// during an evaluation, so every increment is mutex-guarded: reported cost
// must equal the true sum of per-call usage.
type Ledger struct {
	mu    sync.Mutex
	usage map[string]domain.TokenUsage
}

// NewLedger creates an empty ledger ready for concurrent recording.
func NewLedger() *Ledger {
	return &Ledger{usage: make(map[string]domain.TokenUsage)}
}

// Record adds a usage delta for the given model. Safe for concurrent use.
func (l *Ledger) Record(model string, delta domain.TokenUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage[model] = l.usage[model].Add(delta)
}

// Snapshot returns a copy of the accumulated usage by model.
// The returned map is owned by the caller.
func (l *Ledger) Snapshot() map[string]domain.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]domain.TokenUsage, len(l.usage))
	for model, usage := range l.usage {
		out[model] = usage
	}
	return out
}

// Total returns the usage summed across all models.
func (l *Ledger) Total() domain.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total domain.TokenUsage
	for _, usage := range l.usage {
		total = total.Add(usage)
	}
	return total
}
