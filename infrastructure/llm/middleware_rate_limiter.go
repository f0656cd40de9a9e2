package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// rateLimitedGenerator paces requests with a token bucket so concurrent
// evaluation workers stay under the provider's rate limits.
type rateLimitedGenerator struct {
	next    CoreGenerator
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces a sustained
// requests-per-second rate with a burst allowance. The limiter is shared
// by every request through the wrapped generator.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreGenerator) CoreGenerator {
		return &rateLimitedGenerator{
			next:    next,
			limiter: limiter,
		}
	}
}

// DoGenerate blocks until the limiter grants a token, then forwards the
// request.
func (r *rateLimitedGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoGenerate(ctx, req)
}

// GetModel returns the model name from the wrapped implementation.
func (r *rateLimitedGenerator) GetModel() string { return r.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (r *rateLimitedGenerator) SetModel(m string) { r.next.SetModel(m) }
