// handlers.go contains the command implementations: wiring the provider
// client, searcher, orchestrator, judge, and result store together.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-sleuth/infrastructure/llm"
	"github.com/ahrav/go-sleuth/infrastructure/middleware"
	"github.com/ahrav/go-sleuth/infrastructure/search"
	"github.com/ahrav/go-sleuth/internal/agent"
	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/evaluation"
	"github.com/ahrav/go-sleuth/internal/ports"
	"github.com/ahrav/go-sleuth/internal/pricing"
)

// apiKeyEnvVars maps provider names to the environment variable holding
// their key.
var apiKeyEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// defaultModels maps provider names to the model used when --model is
// not given.
var defaultModels = map[string]string{
	"openai":    llm.OpenAIDefaultModel,
	"anthropic": llm.AnthropicDefaultModel,
	"google":    llm.GoogleDefaultModel,
}

// buildGenerator assembles the provider client with the standard
// middleware chain. The ledger records usage per attempt; the collector
// may be nil to disable metrics.
func buildGenerator(f generationFlags, ledger *pricing.Ledger, collector ports.MetricsCollector) (*llm.Client, error) {
	apiKey := f.apiKey
	if apiKey == "" {
		envVar, ok := apiKeyEnvVars[f.provider]
		if !ok {
			return nil, fmt.Errorf("unknown provider: %s", f.provider)
		}
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, domain.NewConfigurationError(f.provider,
				fmt.Errorf("no API key given and %s is not set", envVar))
		}
	}

	model := f.model
	if model == "" {
		model = defaultModels[f.provider]
	}

	return llm.NewClient(f.provider, llm.ClientConfig{
		APIKey: apiKey,
		Model:  model,
		Middleware: []llm.Middleware{
			llm.RetryMiddleware(3, time.Second, 30*time.Second),
			llm.CircuitBreakerMiddleware(5, 30*time.Second),
			llm.RateLimitMiddleware(rate.Limit(2), 4),
			llm.TimeoutMiddleware(2 * time.Minute),
			llm.TracingMiddleware("sleuth"),
			llm.MetricsMiddleware(f.provider, collector),
			llm.UsageMiddleware(ledger),
		},
	})
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// serveMetrics exposes the Prometheus registry on addr in the
// background. A batch run that ends takes the endpoint down with it;
// scrape intervals should be short when it matters.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

type evaluateOptions struct {
	gen          generationFlags
	groundTruth  string
	outputDir    string
	runID        string
	concurrency  int
	corpusName   string
	databaseURL  string
	baseURL      string
	metricsAddr  string
	excludeTerms []string
}

func runEvaluate(ctx context.Context, opts evaluateOptions) error {
	logger := newLogger()

	var collector ports.MetricsCollector
	if opts.metricsAddr != "" {
		collector = middleware.NewPrometheusMetrics(nil)
		serveMetrics(opts.metricsAddr, logger)
	}

	questions, err := evaluation.LoadGroundTruth(opts.groundTruth)
	if err != nil {
		return err
	}

	store, err := evaluation.NewResultStore(opts.outputDir)
	if err != nil {
		return err
	}

	databaseURL := opts.databaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	searcher, err := search.NewPostgresSearcher(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer searcher.Close()

	ledger := pricing.NewLedger()
	client, err := buildGenerator(opts.gen, ledger, collector)
	if err != nil {
		return err
	}

	runner, err := agent.NewRunner(client, searcher, agent.RunnerConfig{
		CorpusName:       opts.corpusName,
		ExcludeTerms:     opts.excludeTerms,
		ReferenceBaseURL: opts.baseURL,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	orchOpts := []evaluation.OrchestratorOption{
		evaluation.WithLogger(logger),
		evaluation.WithReferenceBaseURL(opts.baseURL),
		evaluation.WithProgress(func(completed, total int) {
			logger.Info("evaluation progress", "completed", completed, "total", total)
		}),
	}
	if opts.concurrency > 0 {
		orchOpts = append(orchOpts, evaluation.WithConcurrency(opts.concurrency))
	}
	orch, err := evaluation.NewOrchestrator(runner, orchOpts...)
	if err != nil {
		return err
	}

	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger.Info("starting evaluation",
		"run_id", runID,
		"questions", len(questions),
		"provider", opts.gen.provider,
		"model", client.Model(),
	)

	results, err := orch.Evaluate(ctx, questions)
	if err != nil {
		return err
	}

	artifact := evaluation.RunArtifact{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Results:   results,
		Usage:     ledger.Snapshot(),
	}
	if err := store.SaveResults(artifact); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	total := ledger.Total()

	fmt.Printf("Run %s complete: %d questions, %d failed\n", runID, len(results), failed)
	fmt.Printf("Tokens: %d in / %d out\n", total.InputTokens, total.OutputTokens)
	fmt.Printf("Results written to %s\n", store.RunPath(runID))
	return nil
}

type judgeOptions struct {
	gen       generationFlags
	runID     string
	rubric    string
	outputDir string
}

func runJudge(ctx context.Context, opts judgeOptions) error {
	logger := newLogger()

	store, err := evaluation.NewResultStore(opts.outputDir)
	if err != nil {
		return err
	}
	run, err := store.LoadResults(opts.runID)
	if err != nil {
		return err
	}

	// A prior judge artifact means this is a resumed pass; already-judged
	// results are carried over without another generation call.
	var prior []domain.JudgeResult
	if existing, err := store.LoadJudgeResults(opts.runID); err != nil {
		return err
	} else if existing != nil {
		prior = existing.Results
		logger.Info("resuming judge pass", "prior_results", len(prior))
	}

	rubric, err := evaluation.LoadRubric(opts.rubric)
	if err != nil {
		return err
	}

	ledger := pricing.NewLedger()
	client, err := buildGenerator(opts.gen, ledger, nil)
	if err != nil {
		return err
	}

	judge, err := evaluation.NewJudge(client, evaluation.JudgeConfig{
		Rubric: rubric,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info("judging run",
		"run_id", opts.runID,
		"results", len(run.Results),
		"criteria", len(rubric),
	)
	verdicts, err := judge.JudgeAll(ctx, run.Results, prior)
	if err != nil {
		return err
	}

	artifact := evaluation.JudgeArtifact{
		RunID:     opts.runID,
		CreatedAt: time.Now().UTC(),
		Results:   verdicts,
		Usage:     ledger.Snapshot(),
	}
	if err := store.SaveJudgeResults(artifact); err != nil {
		return err
	}

	passed, checks := 0, 0
	for _, v := range verdicts {
		passed += v.Passed()
		checks += len(v.Checks)
	}
	fmt.Printf("Judged %d results: %d/%d checks passed\n", len(verdicts), passed, checks)
	fmt.Printf("Verdicts written to %s\n", store.JudgePath(opts.runID))
	return nil
}

type reportOptions struct {
	runID     string
	outputDir string
	pricing   string
}

func runReport(_ context.Context, opts reportOptions) error {
	store, err := evaluation.NewResultStore(opts.outputDir)
	if err != nil {
		return err
	}
	run, err := store.LoadResults(opts.runID)
	if err != nil {
		return err
	}
	judged, err := store.LoadJudgeResults(opts.runID)
	if err != nil {
		return err
	}

	table := pricing.DefaultTable()
	if opts.pricing != "" {
		table, err = pricing.LoadTable(opts.pricing)
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, r := range run.Results {
		if r.Failed() {
			failed++
		}
	}
	fmt.Printf("Run %s: %d questions, %d failed\n", run.RunID, len(run.Results), failed)

	if judged != nil {
		printCheckSummary(judged.Results)
	} else {
		fmt.Println("\nNo judge results yet; run `sleuth judge` first for pass rates.")
	}

	usage := mergeUsage(run.Usage, judgedUsage(judged))
	fmt.Println("\nCost:")
	var totalCost float64
	for _, row := range table.Report(usage) {
		suffix := ""
		if !row.Priced {
			suffix = " (unpriced model)"
		}
		fmt.Printf("  %-30s %10d in / %10d out   $%.4f%s\n",
			row.Model, row.Usage.InputTokens, row.Usage.OutputTokens, row.Cost, suffix)
		totalCost += row.Cost
	}
	fmt.Printf("  %-30s %35s $%.4f\n", "total", "", totalCost)
	return nil
}

// printCheckSummary aggregates pass rates per check name across all
// judged results.
func printCheckSummary(verdicts []domain.JudgeResult) {
	type tally struct {
		name   string
		passed int
		total  int
	}
	var order []string
	tallies := map[string]*tally{}
	for _, v := range verdicts {
		for _, c := range v.Checks {
			t, ok := tallies[c.Name]
			if !ok {
				t = &tally{name: c.Name}
				tallies[c.Name] = t
				order = append(order, c.Name)
			}
			t.total++
			if c.Pass {
				t.passed++
			}
		}
	}

	fmt.Println("\nChecks:")
	for _, name := range order {
		t := tallies[name]
		fmt.Printf("  %-30s %d/%d (%.0f%%)\n",
			t.name, t.passed, t.total, 100*float64(t.passed)/float64(t.total))
	}
}

func judgedUsage(judged *evaluation.JudgeArtifact) map[string]domain.TokenUsage {
	if judged == nil {
		return nil
	}
	return judged.Usage
}

func mergeUsage(a, b map[string]domain.TokenUsage) map[string]domain.TokenUsage {
	merged := make(map[string]domain.TokenUsage, len(a)+len(b))
	for model, usage := range a {
		merged[model] = usage
	}
	for model, usage := range b {
		merged[model] = merged[model].Add(usage)
	}
	return merged
}
