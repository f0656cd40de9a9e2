// Package main provides the CLI entry point for the sleuth evaluation
// harness.
//
// Sleuth runs a retrieval-augmented search agent over a ground-truth
// question set, persists the transcripts, scores them with an LLM judge,
// and reports token cost.
//
// # Basic Usage
//
// Run an evaluation:
//
//	sleuth evaluate --ground-truth questions.csv --provider openai
//
// Judge a finished run:
//
//	sleuth judge --run-id <id> --rubric rubric.yaml
//
// Report cost and pass rates:
//
//	sleuth report --run-id <id>
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - GEMINI_API_KEY: Google API key for Gemini models
//   - DATABASE_URL: Postgres connection string for the search corpus
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "sleuth",
		Short:         "Evaluation harness for a retrieval-augmented search agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildEvaluateCmd(), buildJudgeCmd(), buildReportCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
