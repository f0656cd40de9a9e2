// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

// generationFlags holds the provider selection shared by the evaluate
// and judge commands.
type generationFlags struct {
	provider string
	model    string
	apiKey   string
}

func (f *generationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "openai",
		"Generation provider: openai, anthropic, or google")
	cmd.Flags().StringVar(&f.model, "model", "",
		"Model identifier (defaults to the provider's standard model)")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "",
		"Provider API key (defaults to the provider's environment variable)")
}

func buildEvaluateCmd() *cobra.Command {
	var (
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
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the search agent over a ground-truth question set",
		Long: `Run the search agent over every question in a ground-truth CSV.

Questions are dispatched concurrently; each run searches the corpus,
writes an article, and is recorded whether it succeeds or fails. The
full result set is persisted as eval-run-<id>.json in the output
directory.`,
		Example: `  # Evaluate with defaults
  sleuth evaluate --ground-truth questions.csv

  # Evaluate with Claude at higher concurrency
  sleuth evaluate --ground-truth questions.csv --provider anthropic --concurrency 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd.Context(), evaluateOptions{
				gen:          gen,
				groundTruth:  groundTruth,
				outputDir:    outputDir,
				runID:        runID,
				concurrency:  concurrency,
				corpusName:   corpusName,
				databaseURL:  databaseURL,
				baseURL:      baseURL,
				metricsAddr:  metricsAddr,
				excludeTerms: excludeTerms,
			})
		},
	}

	gen.register(cmd)
	cmd.Flags().StringVar(&groundTruth, "ground-truth", "",
		"Path to the ground-truth CSV (required)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "results",
		"Directory for run artifacts")
	cmd.Flags().StringVar(&runID, "run-id", "",
		"Run identifier (defaults to a generated UUID)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0,
		"Number of questions evaluated in parallel")
	cmd.Flags().StringVar(&corpusName, "corpus-name", "the documentation corpus",
		"Corpus name used in the agent instructions")
	cmd.Flags().StringVar(&databaseURL, "database-url", "",
		"Postgres connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&baseURL, "reference-base-url", "",
		"Link prefix for rendered article references")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Address to serve Prometheus metrics on (disabled when empty)")
	cmd.Flags().StringSliceVar(&excludeTerms, "exclude-terms", nil,
		"Terms the agent is instructed to omit from search queries")
	_ = cmd.MarkFlagRequired("ground-truth")

	return cmd
}

func buildJudgeCmd() *cobra.Command {
	var (
		gen       generationFlags
		runID     string
		rubric    string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "judge",
		Short: "Score a finished run against a rubric",
		Long: `Score every result of a finished evaluation run against a YAML
rubric of pass/fail criteria, one generation call per result.

Results already judged in a previous pass are carried over without
spending another call, so an interrupted judge pass can be resumed.
Verdicts are persisted as eval-judge-<id>.json next to the run
artifact.`,
		Example: `  # Judge a run
  sleuth judge --run-id 5f0c... --rubric rubric.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJudge(cmd.Context(), judgeOptions{
				gen:       gen,
				runID:     runID,
				rubric:    rubric,
				outputDir: outputDir,
			})
		},
	}

	gen.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier to judge (required)")
	cmd.Flags().StringVar(&rubric, "rubric", "", "Path to the rubric YAML (required)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "results",
		"Directory holding run artifacts")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func buildReportCmd() *cobra.Command {
	var (
		runID     string
		outputDir string
		pricing   string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize pass rates and token cost for a run",
		Long: `Print a summary of a finished run: per-check pass rates from the
judge artifact when one exists, and per-model token usage priced
against a cost table. Models missing from the table are reported with
zero cost and flagged as unpriced.`,
		Example: `  # Report with built-in prices
  sleuth report --run-id 5f0c...

  # Report with a price override file
  sleuth report --run-id 5f0c... --pricing prices.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), reportOptions{
				runID:     runID,
				outputDir: outputDir,
				pricing:   pricing,
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier to report on (required)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "results",
		"Directory holding run artifacts")
	cmd.Flags().StringVar(&pricing, "pricing", "",
		"Path to a YAML price table merged over the built-in defaults")
	_ = cmd.MarkFlagRequired("run-id")

	return cmd
}
