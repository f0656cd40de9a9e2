// Package llm provides structured-output generation clients for multiple
// LLM providers with built-in support for usage accounting, rate limiting,
// retries, metrics, and tracing.
//
// The package abstracts the providers (OpenAI, Anthropic, Google) behind a
// common interface while adding operational cross-cutting concerns through
// a middleware pattern. Every provider speaks the same contract: given
// instructions, a transcript, tool schemas, and an output schema, return
// either a tool invocation or a schema-conforming final payload.
//
// Architecture:
//   - Core client implementation with middleware chain composition
//   - Provider implementations abstracted through the CoreGenerator interface
//   - Pluggable middleware for usage recording, retries, rate limiting,
//     circuit breaking, metrics, and tracing
//   - Factory registry for provider creation by name
//
// Basic usage:
//
//	gen, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o",
//	})
//	resp, err := gen.GenerateStructured(ctx, req)
//
// With middleware:
//
//	gen, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-sonnet-20241022",
//	    Middleware: []llm.Middleware{
//	        llm.UsageMiddleware(ledger),
//	        llm.RetryMiddleware(3, time.Second, 30*time.Second),
//	        llm.RateLimitMiddleware(10, 20),
//	    },
//	})
package llm

import (
	"context"
	"fmt"

	"github.com/ahrav/go-sleuth/internal/ports"
)

// CoreGenerator defines the minimal interface that providers must
// implement. It abstracts one structured generation step, allowing the
// middleware system to wrap any conforming implementation.
type CoreGenerator interface {
	// DoGenerate performs one generation step against the provider's API.
	// Implementations translate the request's transcript, tools, and
	// output schema into the provider's wire format and normalize the
	// response into the tagged GenerateResponse union.
	DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreGenerator to add cross-cutting functionality.
// This pattern allows composition of features like usage recording, rate
// limiting, and retries without modifying core provider logic.
type Middleware func(CoreGenerator) CoreGenerator

// ClientConfig holds all configuration options for creating a client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model specifies which model to use for requests.
	// Each provider has its own default when empty.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Middleware is applied in the order specified, outermost first.
	Middleware []Middleware
}

// Client implements ports.Generator by delegating to a provider-specific
// CoreGenerator wrapped in the configured middleware chain.
type Client struct {
	core CoreGenerator
}

var _ ports.Generator = (*Client)(nil)

// NewClient creates a generator for the named provider. It assembles the
// middleware chain and validates configuration before returning a
// ready-to-use client.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// GenerateStructured performs one generation step through the middleware
// chain.
func (c *Client) GenerateStructured(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	return c.core.DoGenerate(ctx, req)
}

// Model returns the configured model name from the underlying provider.
func (c *Client) Model() string { return c.core.GetModel() }

// ProviderFactory creates a CoreGenerator implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreGenerator, error)

// Provider factory registry. Providers register themselves in init so a
// client can be created by name without importing provider internals.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider factory under a name.
// This enables extension with additional providers without modifying the
// core package.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
