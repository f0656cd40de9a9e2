package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-sleuth/internal/agent"
	"github.com/ahrav/go-sleuth/internal/domain"
)

// DefaultConcurrency is the default width of the evaluation worker pool.
const DefaultConcurrency = 6

// AgentRunner abstracts the search agent for the orchestrator; the
// concrete implementation is agent.Runner.
type AgentRunner interface {
	Run(ctx context.Context, question string) (*agent.RunResult, error)
}

// Orchestrator fans a question set out over a bounded worker pool of
// agent runs and collects one EvaluationResult per question.
//
// Fan-out is fail-soft: a failed run is converted into a failure-marked
// result at the worker boundary and never aborts sibling runs. The only
// error Evaluate itself returns is cancellation of the whole pool.
type Orchestrator struct {
	runner      AgentRunner
	concurrency int
	baseURL     string
	logger      *slog.Logger

	// onProgress, when set, observes the monotonically increasing count
	// of completed runs without blocking workers.
	onProgress func(completed, total int)

	completed atomic.Int64
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency sets the worker pool width. Values below 1 fall back
// to the default.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.concurrency = n
		}
	}
}

// WithProgress registers a completion callback. It is invoked once per
// finished question (success or failure) with the updated completed
// count; it must be fast and must not block.
func WithProgress(fn func(completed, total int)) OrchestratorOption {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithReferenceBaseURL sets the link prefix used when rendering article
// answers to markdown.
func WithReferenceBaseURL(baseURL string) OrchestratorOption {
	return func(o *Orchestrator) { o.baseURL = baseURL }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator creates an orchestrator for the given runner.
func NewOrchestrator(runner AgentRunner, opts ...OrchestratorOption) (*Orchestrator, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	o := &Orchestrator{
		runner:      runner,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Evaluate runs the agent once per question across the worker pool and
// returns exactly len(questions) results, in input order. Each result
// retains its originating Question so judge output can be re-correlated
// regardless of completion order.
//
// Cancelling ctx stops dispatching new runs and returns ctx.Err();
// results completed before cancellation are still present in the
// returned slice.
func (o *Orchestrator) Evaluate(ctx context.Context, questions []domain.Question) ([]domain.EvaluationResult, error) {
	results := make([]domain.EvaluationResult, len(questions))
	total := len(questions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, question := range questions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			results[i] = o.runOne(gctx, question)

			done := int(o.completed.Add(1))
			if o.onProgress != nil {
				o.onProgress(done, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// runOne executes a single agent run and converts any failure into a
// result-shaped failure record.
func (o *Orchestrator) runOne(ctx context.Context, question domain.Question) domain.EvaluationResult {
	run, err := o.runner.Run(ctx, question.Text)
	if err != nil {
		o.logger.Warn("agent run failed", "question", question.Text, "error", err)
		return domain.EvaluationResult{
			Question: question,
			Error:    err.Error(),
		}
	}

	return domain.EvaluationResult{
		Question:      question,
		Answer:        run.Article.Format(o.baseURL),
		Article:       run.Article,
		Transcript:    run.Transcript,
		ToolCallCount: run.ToolCallCount,
		Usage:         run.Usage,
	}
}
