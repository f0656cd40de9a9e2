package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

func finalResponse(usage domain.TokenUsage) *ports.GenerateResponse {
	return &ports.GenerateResponse{
		Kind:  ports.KindFinal,
		Final: []byte(`{"ok":true}`),
		Usage: usage,
	}
}

func TestRetryMiddleware_RecoversFromTransientFailures(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	transient := NewProviderError("test", ErrorTypeRateLimit, 429, "slow down", nil)
	mock.enqueue(nil, transient)
	mock.enqueue(nil, transient)
	mock.enqueue(finalResponse(domain.TokenUsage{InputTokens: 10}), nil)

	gen := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

	resp, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, ports.KindFinal, resp.Kind)
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryMiddleware_StopsOnNonRetryableError(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(nil, NewProviderError("test", ErrorTypeAuthentication, 401, "bad key", nil))

	gen := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ErrorTypeAuthentication, provErr.Type)
}

func TestRetryMiddleware_StopsOnOpenCircuit(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(nil, ErrCircuitOpen)

	gen := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, mock.Calls())
}

func TestRetryMiddleware_ExhaustsAttempts(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(nil, NewProviderError("test", ErrorTypeServerError, 503, "overloaded", nil))

	gen := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, mock.Calls())
	assert.Contains(t, err.Error(), "after 3 attempts")
}

// recordedUsage captures Record calls for assertions.
type recordedUsage struct {
	model string
	usage domain.TokenUsage
}

type fakeRecorder struct {
	records []recordedUsage
}

func (f *fakeRecorder) Record(model string, usage domain.TokenUsage) {
	f.records = append(f.records, recordedUsage{model: model, usage: usage})
}

func TestUsageMiddleware_RecordsSuccessfulCalls(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(finalResponse(domain.TokenUsage{InputTokens: 120, OutputTokens: 30}), nil)

	recorder := &fakeRecorder{}
	gen := UsageMiddleware(recorder)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "test-model", recorder.records[0].model)
	assert.Equal(t, domain.TokenUsage{InputTokens: 120, OutputTokens: 30}, recorder.records[0].usage)
}

func TestUsageMiddleware_SkipsFailedCalls(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(nil, errors.New("boom"))

	recorder := &fakeRecorder{}
	gen := UsageMiddleware(recorder)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)
	assert.Empty(t, recorder.records)
}

func TestCircuitBreakerMiddleware_OpensAfterConsecutiveFailures(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(nil, errors.New("boom"))

	gen := CircuitBreakerMiddleware(2, time.Hour)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)
	_, err = gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.Error(t, err)

	// The circuit is now open: the provider is no longer reached.
	_, err = gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, mock.Calls())
}

func TestCircuitBreakerMiddleware_AllowsConcurrentCalls(t *testing.T) {
	core := &inFlightCore{hold: 50 * time.Millisecond}

	gen := CircuitBreakerMiddleware(5, time.Hour)(core)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// A closed circuit must not serialize callers on its lock.
	assert.Greater(t, core.peak.Load(), int32(1))
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	time.Sleep(5 * time.Millisecond)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Call(func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	// While the probe is in flight, other callers are rejected instead of
	// queueing behind it.
	<-entered
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)

	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	time.Sleep(5 * time.Millisecond)

	require.Error(t, cb.Call(func() error { return errors.New("still down") }))
	assert.Equal(t, StateOpen, cb.State())
}

// capturingCollector retains the labels of every recorded metric.
type capturingCollector struct {
	mu     sync.Mutex
	labels []map[string]string
}

func (c *capturingCollector) record(labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	c.labels = append(c.labels, copied)
}

func (c *capturingCollector) RecordLatency(_ string, _ time.Duration, labels map[string]string) {
	c.record(labels)
}
func (c *capturingCollector) RecordCounter(_ string, _ float64, labels map[string]string) {
	c.record(labels)
}
func (c *capturingCollector) RecordGauge(_ string, _ float64, labels map[string]string) {
	c.record(labels)
}
func (c *capturingCollector) RecordHistogram(_ string, _ float64, labels map[string]string) {
	c.record(labels)
}

func TestMetricsMiddleware_ProviderLabelIsExplicit(t *testing.T) {
	// A custom model identifier must not change provider attribution.
	mock := newMockCoreGenerator("my-finetune-v2")
	mock.enqueue(finalResponse(domain.TokenUsage{InputTokens: 5, OutputTokens: 2}), nil)

	collector := &capturingCollector{}
	gen := MetricsMiddleware("anthropic", collector)(mock)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)

	require.NotEmpty(t, collector.labels)
	for _, labels := range collector.labels {
		assert.Equal(t, "anthropic", labels["provider"])
		assert.Equal(t, "my-finetune-v2", labels["model"])
	}
}

func TestTimeoutMiddleware_AppliesDeadline(t *testing.T) {
	var sawDeadline bool
	core := &deadlineProbe{saw: &sawDeadline}

	gen := TimeoutMiddleware(time.Minute)(core)

	_, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)
	assert.True(t, sawDeadline)
}

func TestRateLimitMiddleware_PassesThrough(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(finalResponse(domain.TokenUsage{}), nil)

	gen := RateLimitMiddleware(100, 1)(mock)

	resp, err := gen.DoGenerate(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, ports.KindFinal, resp.Kind)
}

// inFlightCore records the peak number of in-flight DoGenerate calls
// while holding each call for a fixed duration.
type inFlightCore struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	hold     time.Duration
}

func (c *inFlightCore) DoGenerate(ctx context.Context, _ ports.GenerateRequest) (*ports.GenerateResponse, error) {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	for {
		p := c.peak.Load()
		if cur <= p || c.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	time.Sleep(c.hold)
	return &ports.GenerateResponse{Kind: ports.KindFinal}, nil
}

func (c *inFlightCore) GetModel() string  { return "in-flight-core" }
func (c *inFlightCore) SetModel(m string) {}

// deadlineProbe reports whether the incoming context carried a deadline.
type deadlineProbe struct {
	saw *bool
}

func (d *deadlineProbe) DoGenerate(ctx context.Context, _ ports.GenerateRequest) (*ports.GenerateResponse, error) {
	_, ok := ctx.Deadline()
	*d.saw = ok
	return &ports.GenerateResponse{Kind: ports.KindFinal}, nil
}

func (d *deadlineProbe) GetModel() string  { return "probe" }
func (d *deadlineProbe) SetModel(m string) {}
