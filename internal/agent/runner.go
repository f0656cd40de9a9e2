package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// Default search policy. The minimum is an instruction-level contract
// verified by tests; the maximum is mechanically enforced by the history
// guard.
const (
	DefaultMinSearches = 3
	DefaultMaxSearches = 6
	DefaultSearchTool  = "search"
	DefaultSearchLimit = 5
)

// RunnerConfig configures a search agent run: which corpus the
// instructions describe, the search policy bounds, and the retrieval
// parameters forwarded on every search call.
type RunnerConfig struct {
	// CorpusName names the documentation corpus in the instructions.
	CorpusName string `validate:"required"`

	// CorpusDescription is an optional paragraph describing the corpus,
	// inserted into the instructions after the opening line.
	CorpusDescription string

	// SearchTool is the tool name exposed to the generation step and
	// counted by the history guard. Defaults to "search".
	SearchTool string `validate:"required"`

	// MinSearches is the instruction-level lower bound on searches per
	// query. Defaults to 3.
	MinSearches int `validate:"min=1"`

	// MaxSearches is the hard upper bound on searches per query, enforced
	// by the history guard. Defaults to 6.
	MaxSearches int `validate:"min=1"`

	// SearchLimit caps the number of fragments returned per search.
	// Defaults to 5.
	SearchLimit int `validate:"min=1,max=50"`

	// Boosts and Filters are forwarded verbatim on every retrieval call.
	Boosts  map[string]float64
	Filters map[string]string

	// ExcludeTerms lists terms the instructions forbid in search queries.
	ExcludeTerms []string

	// ReferenceBaseURL is the link prefix used when rendering the final
	// article to markdown.
	ReferenceBaseURL string

	// RunTimeout bounds the wall-clock duration of a single run.
	// Zero disables the timeout.
	RunTimeout time.Duration

	// Options holds provider-specific generation knobs forwarded on every
	// generation call.
	Options map[string]any

	// Logger receives the tool-call diagnostic side channel.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// defaultRunnerConfig returns a RunnerConfig with the standard search
// policy for the named corpus.
func defaultRunnerConfig(corpusName string) RunnerConfig {
	return RunnerConfig{
		CorpusName:  corpusName,
		SearchTool:  DefaultSearchTool,
		MinSearches: DefaultMinSearches,
		MaxSearches: DefaultMaxSearches,
		SearchLimit: DefaultSearchLimit,
	}
}

// RunResult is the outcome of one completed agent run.
type RunResult struct {
	// Article is the agent's structured final output.
	Article *domain.Article

	// Transcript is the full message history of the run.
	Transcript domain.Transcript

	// ToolCallCount is the number of search invocations made.
	ToolCallCount int

	// Usage is the cumulative token consumption across the run's
	// generation calls.
	Usage domain.TokenUsage
}

// Runner drives the generate/search loop for a single question. It binds
// the instructions, the retrieval tool, and the history guard into a
// control loop that alternates generation and retrieval until the
// generation step produces a final article.
//
// The runner is stateless across runs and safe for concurrent use; each
// Run owns its transcript exclusively.
type Runner struct {
	gen          ports.Generator
	searcher     ports.Searcher
	config       RunnerConfig
	guard        HistoryGuard
	instructions string
	tool         ports.ToolSchema
	output       ports.OutputSchema
	argsSchema   *jsonschema.Schema
	logger       *slog.Logger
}

// NewRunner creates a Runner for the given capabilities and configuration.
// Zero-valued policy fields are filled with defaults before validation.
func NewRunner(gen ports.Generator, searcher ports.Searcher, cfg RunnerConfig) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}

	defaults := defaultRunnerConfig(cfg.CorpusName)
	if cfg.SearchTool == "" {
		cfg.SearchTool = defaults.SearchTool
	}
	if cfg.MinSearches == 0 {
		cfg.MinSearches = defaults.MinSearches
	}
	if cfg.MaxSearches == 0 {
		cfg.MaxSearches = defaults.MaxSearches
	}
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = defaults.SearchLimit
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("runner configuration validation failed: %w", err)
	}
	if cfg.MinSearches > cfg.MaxSearches {
		return nil, fmt.Errorf("min searches %d exceeds max searches %d", cfg.MinSearches, cfg.MaxSearches)
	}

	instructions, err := buildInstructions(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render instructions: %w", err)
	}

	argsSchema, err := compileSearchArgsSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile search argument schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		gen:          gen,
		searcher:     searcher,
		config:       cfg,
		guard:        HistoryGuard{Tool: cfg.SearchTool, Threshold: cfg.MaxSearches},
		instructions: instructions,
		tool:         searchToolSchema(cfg.SearchTool),
		output:       articleSchema(),
		argsSchema:   argsSchema,
		logger:       logger,
	}, nil
}

// Run answers a single question. It loops between the generation and
// retrieval capabilities, applying the history guard before every
// generation step, until the generation step returns a final article.
//
// Any unrecoverable capability failure surfaces as a CapabilityError; no
// partial article is ever fabricated. Run blocks; callers wanting
// concurrency run it from their own goroutines (the evaluation
// orchestrator does exactly that).
func (r *Runner) Run(ctx context.Context, question string) (*RunResult, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	transcript := domain.Transcript{{Kind: domain.KindUser, Content: question}}
	var usage domain.TokenUsage

	// Worst case is MaxSearches tool-call steps plus the forced final
	// step; anything past that means the generation step is ignoring the
	// guard, which the loop below rejects explicitly.
	maxSteps := r.config.MaxSearches + 2

	for step := 0; step < maxSteps; step++ {
		transcript = r.guard.Enforce(transcript)

		resp, err := r.gen.GenerateStructured(ctx, ports.GenerateRequest{
			Instructions: r.instructions,
			History:      transcript,
			Tools:        []ports.ToolSchema{r.tool},
			Output:       r.output,
			Options:      r.config.Options,
		})
		if err != nil {
			return nil, domain.NewCapabilityError(domain.CapabilityGenerate, err)
		}
		usage = usage.Add(resp.Usage)

		switch resp.Kind {
		case ports.KindFinal:
			var article domain.Article
			if err := json.Unmarshal(resp.Final, &article); err != nil {
				return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
					fmt.Errorf("final output does not conform to article schema: %w", err))
			}
			if err := article.Validate(); err != nil {
				return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
					fmt.Errorf("final article failed validation: %w", err))
			}

			transcript = transcript.Append(domain.Message{
				Kind:    domain.KindFinal,
				Content: string(resp.Final),
			})

			return &RunResult{
				Article:       &article,
				Transcript:    transcript,
				ToolCallCount: transcript.CountToolCalls(r.config.SearchTool),
				Usage:         usage,
			}, nil

		case ports.KindToolCall:
			transcript, err = r.handleToolCall(ctx, transcript, resp)
			if err != nil {
				return nil, err
			}

		default:
			return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
				fmt.Errorf("unexpected response kind %d", resp.Kind))
		}
	}

	return nil, domain.NewCapabilityError(domain.CapabilityGenerate, domain.ErrNoFinalOutput)
}

// handleToolCall validates and executes one search invocation, returning
// the transcript extended with the tool-call and tool-result messages.
func (r *Runner) handleToolCall(
	ctx context.Context,
	transcript domain.Transcript,
	resp *ports.GenerateResponse,
) (domain.Transcript, error) {
	call := resp.ToolCall
	if call == nil || call.ToolName != r.config.SearchTool {
		name := "<nil>"
		if call != nil {
			name = call.ToolName
		}
		return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
			fmt.Errorf("%w: %s", domain.ErrUnknownTool, name))
	}

	// The guard fired before this generation step; a further tool call
	// means the model disobeyed the forced finalization.
	if transcript.CountToolCalls(r.config.SearchTool) >= r.config.MaxSearches {
		return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
			fmt.Errorf("tool call after forced finalization at %d searches", r.config.MaxSearches))
	}

	if err := r.argsSchema.Validate(normalizeArgs(call.Arguments)); err != nil {
		return nil, domain.NewCapabilityError(domain.CapabilityGenerate,
			fmt.Errorf("tool arguments failed schema validation: %w", err))
	}
	query, _ := call.Arguments["query"].(string)

	r.logger.Info("tool call",
		"tool", call.ToolName,
		"query", query,
		"calls_so_far", transcript.CountToolCalls(r.config.SearchTool),
	)

	hits, err := r.searcher.Search(ctx, ports.SearchRequest{
		Query:   query,
		Boosts:  r.config.Boosts,
		Filters: r.config.Filters,
		Limit:   r.config.SearchLimit,
	})
	if err != nil {
		return nil, domain.NewCapabilityError(domain.CapabilitySearch, err)
	}

	payload, err := json.Marshal(hits)
	if err != nil {
		return nil, domain.NewCapabilityError(domain.CapabilitySearch,
			fmt.Errorf("failed to encode search results: %w", err))
	}

	transcript = transcript.Append(domain.Message{
		Kind:     domain.KindToolCall,
		ToolName: call.ToolName,
		CallID:   resp.CallID,
		Args:     call.Arguments,
	})
	transcript = transcript.Append(domain.Message{
		Kind:     domain.KindToolResult,
		ToolName: call.ToolName,
		CallID:   resp.CallID,
		Content:  string(payload),
	})

	return transcript, nil
}

// normalizeArgs round-trips tool arguments through JSON so schema
// validation sees the canonical decoded representation regardless of how
// the provider constructed the map.
func normalizeArgs(args map[string]any) any {
	data, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return args
	}
	return out
}
