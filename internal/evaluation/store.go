package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-sleuth/internal/domain"
)

// RunArtifact is the on-disk record of one evaluation run: every result
// plus the per-model usage observed by the ledger while it ran.
type RunArtifact struct {
	RunID     string                       `json:"run_id"`
	CreatedAt time.Time                    `json:"created_at"`
	Results   []domain.EvaluationResult    `json:"results"`
	Usage     map[string]domain.TokenUsage `json:"usage,omitempty"`
}

// JudgeArtifact is the on-disk record of one judge pass over a run.
type JudgeArtifact struct {
	RunID     string                       `json:"run_id"`
	CreatedAt time.Time                    `json:"created_at"`
	Results   []domain.JudgeResult         `json:"results"`
	Usage     map[string]domain.TokenUsage `json:"usage,omitempty"`
}

// ResultStore persists run and judge artifacts as JSON files under a
// base directory, keyed by run ID: eval-run-<id>.json holds evaluation
// results and eval-judge-<id>.json holds the matching judge results.
//
// Writes are atomic (temp file then rename), so a crash mid-write never
// leaves a truncated artifact under the final name. A file that fails to
// decode is reported as a PartialWriteError rather than silently skipped.
type ResultStore struct {
	dir string
}

// NewResultStore creates the base directory if needed and returns a
// store rooted there.
func NewResultStore(dir string) (*ResultStore, error) {
	if dir == "" {
		return nil, domain.NewConfigurationError("result store", fmt.Errorf("directory is required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewConfigurationError("result store", err)
	}
	return &ResultStore{dir: dir}, nil
}

// RunPath returns the evaluation-results path for a run ID.
func (s *ResultStore) RunPath(runID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("eval-run-%s.json", runID))
}

// JudgePath returns the judge-results path for a run ID.
func (s *ResultStore) JudgePath(runID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("eval-judge-%s.json", runID))
}

// SaveResults writes the run artifact for artifact.RunID.
func (s *ResultStore) SaveResults(artifact RunArtifact) error {
	return s.writeJSON(s.RunPath(artifact.RunID), artifact)
}

// LoadResults reads the run artifact for runID. A missing file is a
// ConfigurationError; a file that exists but does not decode is a
// PartialWriteError.
func (s *ResultStore) LoadResults(runID string) (*RunArtifact, error) {
	var artifact RunArtifact
	if err := s.readJSON(s.RunPath(runID), &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// SaveJudgeResults writes the judge artifact for artifact.RunID.
func (s *ResultStore) SaveJudgeResults(artifact JudgeArtifact) error {
	return s.writeJSON(s.JudgePath(artifact.RunID), artifact)
}

// LoadJudgeResults reads the judge artifact for runID. A missing file
// returns (nil, nil) so callers can treat "no judge pass yet" as the
// empty prior set; a corrupt file is a PartialWriteError.
func (s *ResultStore) LoadJudgeResults(runID string) (*JudgeArtifact, error) {
	var artifact JudgeArtifact
	err := s.readJSON(s.JudgePath(runID), &artifact)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}

func (s *ResultStore) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.NewPartialWriteError(path, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.NewPartialWriteError(path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.NewPartialWriteError(path, err)
	}
	return nil
}

func (s *ResultStore) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewConfigurationError("result store", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.NewPartialWriteError(path, err)
	}
	return nil
}
