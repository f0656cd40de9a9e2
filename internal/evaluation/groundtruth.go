// Package evaluation runs the agent over a ground-truth question set,
// persists the resulting transcripts, and scores them with an LLM judge.
package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ahrav/go-sleuth/internal/domain"
)

// LoadGroundTruth reads a ground-truth CSV into questions. The file must
// carry a header row with a "question" column; filename, relevant_lines,
// difficulty, intent, and summary_answer columns are optional and mapped
// by name so column order does not matter.
//
// A missing or unreadable file is a ConfigurationError: ground truth is
// required before any work is dispatched.
func LoadGroundTruth(path string) ([]domain.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewConfigurationError(path, err)
	}
	defer f.Close()

	questions, err := ReadGroundTruth(f)
	if err != nil {
		return nil, domain.NewConfigurationError(path, err)
	}
	return questions, nil
}

// ReadGroundTruth parses ground-truth CSV content from r.
func ReadGroundTruth(r io.Reader) ([]domain.Question, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := columns["question"]; !ok {
		return nil, fmt.Errorf("ground truth is missing the required question column")
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var questions []domain.Question
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		text := field(record, "question")
		if text == "" {
			continue
		}

		questions = append(questions, domain.Question{
			Text:          text,
			Filename:      field(record, "filename"),
			RelevantLines: field(record, "relevant_lines"),
			Difficulty:    field(record, "difficulty"),
			Intent:        field(record, "intent"),
			SummaryAnswer: field(record, "summary_answer"),
		})
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("ground truth contains no questions")
	}
	return questions, nil
}
