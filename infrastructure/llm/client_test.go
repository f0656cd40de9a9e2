package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sleuth/internal/ports"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("openai", ClientConfig{Model: "gpt-4o-mini"})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("carrier-pigeon", ClientConfig{APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewClient_RegisteredProviders(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "google"} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewClient(provider, ClientConfig{APIKey: "test-key"})
			require.NoError(t, err)
			assert.NotEmpty(t, client.Model())
		})
	}
}

func TestNewClient_MiddlewareOrder(t *testing.T) {
	mock := newMockCoreGenerator("test-model")
	mock.enqueue(&ports.GenerateResponse{Kind: ports.KindFinal}, nil)
	RegisterProviderFactory("ordered-test", func(ClientConfig) (CoreGenerator, error) {
		return mock, nil
	})

	var order []string
	tag := func(name string) Middleware {
		return func(next CoreGenerator) CoreGenerator {
			return &taggedGenerator{next: next, name: name, order: &order}
		}
	}

	client, err := NewClient("ordered-test", ClientConfig{
		APIKey:     "k",
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, err)

	_, err = client.GenerateStructured(context.Background(), ports.GenerateRequest{})
	require.NoError(t, err)

	// The first listed middleware wraps everything else.
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type taggedGenerator struct {
	next  CoreGenerator
	name  string
	order *[]string
}

func (g *taggedGenerator) DoGenerate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	*g.order = append(*g.order, g.name)
	return g.next.DoGenerate(ctx, req)
}

func (g *taggedGenerator) GetModel() string  { return g.next.GetModel() }
func (g *taggedGenerator) SetModel(m string) { g.next.SetModel(m) }
