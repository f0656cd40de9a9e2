package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-sleuth/internal/domain"
	"github.com/ahrav/go-sleuth/internal/ports"
)

// Defaults for JudgeConfig fields left at their zero value.
const (
	DefaultJudgeConcurrency = 4

	// DefaultSimilarityThreshold is the minimum normalized Levenshtein
	// similarity for the summary_similarity heuristic check to pass.
	DefaultSimilarityThreshold = 0.3
)

// Names of the deterministic checks appended without a model call:
// summary_similarity when the question carries a ground-truth summary
// answer, code_block_presence when the question asks for implementation
// examples.
const (
	SummarySimilarityCheck = "summary_similarity"
	CodeBlockCheck         = "code_block_presence"
)

// codeIntent is the Question.Intent value marking queries that expect an
// implementation example in the answer.
const codeIntent = "code"

// foldCaser folds Unicode case for similarity comparisons. Shared at
// package level since cases.Fold allocates internal tables.
var foldCaser = cases.Fold()

// Criterion is one named pass/fail judgment the judge model renders
// about an evaluation result.
type Criterion struct {
	Name        string `yaml:"name"        json:"name"        validate:"required"`
	Description string `yaml:"description" json:"description" validate:"required"`
}

// LoadRubric reads an ordered list of criteria from a YAML file.
func LoadRubric(path string) ([]Criterion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewConfigurationError("rubric", err)
	}

	var rubric []Criterion
	if err := yaml.Unmarshal(data, &rubric); err != nil {
		return nil, domain.NewConfigurationError("rubric", fmt.Errorf("parsing %s: %w", path, err))
	}
	if len(rubric) == 0 {
		return nil, domain.NewConfigurationError("rubric", fmt.Errorf("%s contains no criteria", path))
	}
	return rubric, nil
}

// JudgeConfig configures a Judge.
type JudgeConfig struct {
	// Rubric is the ordered list of criteria every result is judged
	// against. Output checks preserve this order.
	Rubric []Criterion `validate:"required,min=1,dive"`

	// MaxConcurrency bounds the number of in-flight judge calls.
	MaxConcurrency int `validate:"min=1"`

	// SimilarityThreshold is the pass bar for the summary_similarity
	// heuristic check.
	SimilarityThreshold float64 `validate:"gte=0,lte=1"`

	// Options is passed through to the generator on every call.
	Options map[string]any

	Logger *slog.Logger
}

// Judge scores evaluation results against a rubric. Each result costs
// exactly one generation call covering every rubric criterion at once,
// so the usage ledger sees one entry per judged question.
type Judge struct {
	gen    ports.Generator
	cfg    JudgeConfig
	schema ports.OutputSchema
}

// checklistSchema is the structured-output contract for judge calls.
const checklistSchema = `{
  "type": "object",
  "properties": {
    "checks": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "check_name": {"type": "string"},
          "check_pass": {"type": "boolean"}
        },
        "required": ["check_name", "check_pass"],
        "additionalProperties": false
      }
    }
  },
  "required": ["checks"],
  "additionalProperties": false
}`

// checklist mirrors the structured output the judge model returns.
type checklist struct {
	Checks []domain.JudgeCheck `json:"checks"`
}

// NewJudge validates cfg, fills defaults, and returns a Judge backed by
// the given generator.
func NewJudge(gen ports.Generator, cfg JudgeConfig) (*Judge, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}

	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultJudgeConcurrency
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, domain.NewConfigurationError("judge", err)
	}

	return &Judge{
		gen: gen,
		cfg: cfg,
		schema: ports.OutputSchema{
			Name:        "evaluation_checklist",
			Description: "Pass/fail verdict for each rubric criterion.",
			Schema:      json.RawMessage(checklistSchema),
		},
	}, nil
}

// JudgeAll scores every result and returns exactly one JudgeResult per
// input, index-aligned. Questions already judged cleanly in prior are
// carried over unchanged instead of being re-judged, which makes a
// partially written judge file from an earlier run resumable. Prior
// verdicts that themselves failed are re-judged, so a resumed pass can
// repair transient judge errors.
//
// Per-result failures (model errors, unparseable output) are recorded on
// the JudgeResult and never abort sibling judgments; only context
// cancellation returns an error.
func (j *Judge) JudgeAll(ctx context.Context, results []domain.EvaluationResult, prior []domain.JudgeResult) ([]domain.JudgeResult, error) {
	judged := make([]domain.JudgeResult, len(results))

	done := make(map[string]domain.JudgeResult, len(prior))
	for _, p := range prior {
		if p.Error != "" {
			continue
		}
		done[p.Question.Text] = p
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.MaxConcurrency)

	for i, result := range results {
		if p, ok := done[result.Question.Text]; ok {
			judged[i] = p
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			judged[i] = j.judgeOne(gctx, result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return judged, err
	}
	return judged, nil
}

// judgeOne scores a single result. Results whose agent run failed are
// scored all-false without spending a generation call.
func (j *Judge) judgeOne(ctx context.Context, result domain.EvaluationResult) domain.JudgeResult {
	jr := domain.JudgeResult{Question: result.Question}

	if result.Failed() {
		for _, c := range j.cfg.Rubric {
			jr.Checks = append(jr.Checks, domain.JudgeCheck{Name: c.Name, Pass: false})
		}
		jr.Checks = j.appendHeuristicChecks(jr.Checks, result)
		jr.Error = fmt.Sprintf("agent run failed, not judged: %s", result.Error)
		return jr
	}

	resp, err := j.gen.GenerateStructured(ctx, ports.GenerateRequest{
		Instructions: judgeInstructions,
		History:      domain.Transcript{{Kind: domain.KindUser, Content: j.buildPrompt(result)}},
		Output:       j.schema,
		Options:      j.cfg.Options,
	})
	if err != nil {
		j.cfg.Logger.Warn("judge call failed", "question", result.Question.Text, "error", err)
		jr.Error = err.Error()
		return jr
	}
	if resp.Kind != ports.KindFinal {
		jr.Error = "judge model emitted a tool call instead of a checklist"
		return jr
	}

	var list checklist
	if err := json.Unmarshal([]byte(extractJSON(string(resp.Final))), &list); err != nil {
		jr.Error = fmt.Sprintf("unparseable judge output: %v", err)
		return jr
	}

	// Re-emit checks in rubric order so downstream reports never depend
	// on the model's ordering.
	byName := make(map[string]bool, len(list.Checks))
	for _, c := range list.Checks {
		byName[c.Name] = c.Pass
	}
	var missing []string
	for _, criterion := range j.cfg.Rubric {
		pass, ok := byName[criterion.Name]
		if !ok {
			missing = append(missing, criterion.Name)
		}
		jr.Checks = append(jr.Checks, domain.JudgeCheck{Name: criterion.Name, Pass: pass})
	}
	if len(missing) > 0 {
		jr.Error = fmt.Sprintf("judge output missing checks: %s", strings.Join(missing, ", "))
	}

	jr.Checks = j.appendHeuristicChecks(jr.Checks, result)
	return jr
}

// judgeInstructions is the system prompt for judge calls.
const judgeInstructions = `You are an impartial evaluator of answers produced by a documentation search agent.
You will receive a question, optionally a reference answer, the agent's answer, and a list of named criteria.
For each criterion, decide whether the agent's answer satisfies it.
Return a JSON object with a "checks" array containing one entry per criterion, each with "check_name" (the criterion name, verbatim) and "check_pass" (boolean).
Judge strictly on the provided material.`

// buildPrompt renders the material for one judge call.
func (j *Judge) buildPrompt(result domain.EvaluationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<question>\n%s\n</question>\n\n", result.Question.Text)
	if result.Question.SummaryAnswer != "" {
		fmt.Fprintf(&b, "<reference_answer>\n%s\n</reference_answer>\n\n", result.Question.SummaryAnswer)
	}
	fmt.Fprintf(&b, "<agent_answer>\n%s\n</agent_answer>\n\n", result.Answer)

	b.WriteString("<criteria>\n")
	for _, c := range j.cfg.Rubric {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	}
	b.WriteString("</criteria>\n")

	return b.String()
}

// appendHeuristicChecks adds deterministic checks that cost no model
// call: summary_similarity when the question carries a ground-truth
// summary answer, code_block_presence when the question has code intent.
func (j *Judge) appendHeuristicChecks(checks []domain.JudgeCheck, result domain.EvaluationResult) []domain.JudgeCheck {
	if result.Question.SummaryAnswer != "" {
		pass := false
		if result.Article != nil {
			pass = j.summarySimilarity(result.Question.SummaryAnswer, result.Article) >= j.cfg.SimilarityThreshold
		}
		checks = append(checks, domain.JudgeCheck{Name: SummarySimilarityCheck, Pass: pass})
	}

	if result.Question.Intent == codeIntent {
		checks = append(checks, domain.JudgeCheck{Name: CodeBlockCheck, Pass: hasCodeBlock(result.Article)})
	}

	return checks
}

// hasCodeBlock reports whether any article section contains a fenced
// code block.
func hasCodeBlock(article *domain.Article) bool {
	if article == nil {
		return false
	}
	for _, section := range article.Sections {
		if strings.Contains(section.Content, "```") {
			return true
		}
	}
	return false
}

// summarySimilarity returns the best normalized Levenshtein similarity
// between the ground-truth summary and any section of the article,
// compared case-folded.
func (j *Judge) summarySimilarity(summary string, article *domain.Article) float64 {
	want := foldCaser.String(summary)

	best := 0.0
	for _, section := range article.Sections {
		if s := similarity(want, foldCaser.String(section.Content)); s > best {
			best = s
		}
	}
	return best
}

// similarity normalizes Levenshtein distance into [0, 1], where 1 means
// identical. Distance and length are both measured in runes.
func similarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(s1, s2)

	maxLen := utf8.RuneCountInString(s1)
	if n := utf8.RuneCountInString(s2); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(distance)/float64(maxLen)
}

// extractJSON pulls a JSON object out of model output that may be
// wrapped in markdown fences or surrounded by prose. Returns the raw
// input when no object boundary can be found, letting the caller's
// unmarshal produce the error.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```json") {
		start := strings.Index(response, "```json") + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	if strings.Contains(response, "```") {
		start := strings.Index(response, "```") + 3
		if newline := strings.Index(response[start:], "\n"); newline != -1 {
			start += newline + 1
		}
		if end := strings.Index(response[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(response[start : start+end])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}

	// Walk to the matching close brace, ignoring braces inside strings.
	braceCount := 0
	inString := false
	escapeNext := false
	for i := start; i < len(response); i++ {
		char := response[i]
		if escapeNext {
			escapeNext = false
			continue
		}
		switch {
		case char == '\\':
			escapeNext = true
		case char == '"':
			inString = !inString
		case !inString && char == '{':
			braceCount++
		case !inString && char == '}':
			braceCount--
			if braceCount == 0 {
				return response[start : i+1]
			}
		}
	}

	return response
}
