package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// without reaching the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests immediately to prevent hammering a
	// failing provider.
	StateOpen

	// StateHalfOpen allows a probe request to test provider recovery.
	StateHalfOpen
)

// CircuitBreaker tracks consecutive failures and opens when they exceed
// the threshold, then tests recovery through a half-open probe after the
// cooldown elapses.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time

	// probeInFlight marks that the half-open probe slot is taken; other
	// requests are rejected until the probe's outcome is recorded.
	probeInFlight bool
}

// NewCircuitBreaker creates a circuit breaker that opens after
// maxFailures consecutive errors and stays open for cooldownDuration.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
	}
}

// Call executes fn through the circuit breaker. If the circuit is open it
// returns ErrCircuitOpen immediately; otherwise the circuit state is
// updated from fn's result. The breaker lock guards only the state
// transitions, so concurrent callers run fn in parallel while the circuit
// is closed.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// admit decides whether a request may proceed. An open circuit whose
// cooldown has elapsed transitions to half-open and admits exactly one
// probe; everything else is rejected until the probe's outcome is known.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldownDuration {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// record folds a completed request's outcome into the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	halfOpen := cb.state == StateHalfOpen
	if halfOpen {
		cb.probeInFlight = false
	}

	if err != nil {
		cb.failureCount++
		cb.lastFailure = time.Now()
		if halfOpen || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return
	}

	cb.failureCount = 0
	if halfOpen {
		cb.state = StateClosed
	}
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// circuitBreakedGenerator wraps a generator in a circuit breaker.
type circuitBreakedGenerator struct {
	next CoreGenerator
	cb   *CircuitBreaker
}

// CircuitBreakerMiddleware creates middleware implementing the circuit
// breaker pattern. The circuit opens after maxFailures consecutive errors
// and probes recovery after the cooldown.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)

	return func(next CoreGenerator) CoreGenerator {
		return &circuitBreakedGenerator{
			next: next,
			cb:   cb,
		}
	}
}

// DoGenerate executes the request through the circuit breaker, failing
// fast with ErrCircuitOpen while the circuit is open.
func (c *circuitBreakedGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	var resp *ports.GenerateResponse

	err := c.cb.Call(func() error {
		var err error
		resp, err = c.next.DoGenerate(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetModel returns the model name from the wrapped implementation.
func (c *circuitBreakedGenerator) GetModel() string { return c.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (c *circuitBreakedGenerator) SetModel(m string) { c.next.SetModel(m) }
