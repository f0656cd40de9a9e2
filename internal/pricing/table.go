package pricing

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-sleuth/internal/domain"
)

// ModelPrice holds per-token pricing for one model, expressed in dollars
// per million tokens as providers publish it.
type ModelPrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Table maps model identifiers to their prices. Models absent from the
// table report zero cost and are flagged as unpriced rather than aborting
// the report; a finished run's usage must always be visible.
type Table struct {
	prices map[string]ModelPrice
}

// defaultPrices covers the models the harness is commonly run against.
// Values are dollars per million tokens.
var defaultPrices = map[string]ModelPrice{
	"gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":                    {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":               {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"gemini-2.0-flash-exp":       {InputPerMillion: 0.10, OutputPerMillion: 0.40},
}

// DefaultTable returns a table with built-in prices for common models.
func DefaultTable() Table {
	prices := make(map[string]ModelPrice, len(defaultPrices))
	for model, price := range defaultPrices {
		prices[model] = price
	}
	return Table{prices: prices}
}

// LoadTable reads a YAML price file mapping model identifiers to prices
// and merges it over the built-in defaults, so a partial file only needs
// to list the models it overrides.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, domain.NewConfigurationError(path, err)
	}

	var loaded map[string]ModelPrice
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Table{}, domain.NewConfigurationError(path, fmt.Errorf("malformed price table: %w", err))
	}

	table := DefaultTable()
	for model, price := range loaded {
		table.prices[model] = price
	}
	return table, nil
}

// Cost computes the dollar cost of the given usage for a model.
// The second return value is false when the model is not in the table,
// in which case the cost is zero.
func (t Table) Cost(model string, usage domain.TokenUsage) (float64, bool) {
	price, ok := t.prices[model]
	if !ok {
		return 0, false
	}

	cost := float64(usage.InputTokens)/1e6*price.InputPerMillion +
		float64(usage.OutputTokens)/1e6*price.OutputPerMillion
	return cost, true
}

// ModelReport is one row of a cost report.
type ModelReport struct {
	Model string            `json:"model"`
	Usage domain.TokenUsage `json:"usage"`
	Cost  float64           `json:"cost"`

	// Priced is false when the model was missing from the price table and
	// the cost is therefore zero.
	Priced bool `json:"priced"`
}

// Report converts a usage snapshot into per-model cost rows, sorted by
// model identifier for stable output.
func (t Table) Report(snapshot map[string]domain.TokenUsage) []ModelReport {
	rows := make([]ModelReport, 0, len(snapshot))
	for model, usage := range snapshot {
		cost, priced := t.Cost(model, usage)
		rows = append(rows, ModelReport{Model: model, Usage: usage, Cost: cost, Priced: priced})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Model < rows[j].Model })
	return rows
}
