package teacher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/pipeline"
)

// Store is the run-scoped record of teacher outputs. Each run owns one
// directory holding exactly one terminal record per query; a rerun with the
// same run id rewrites the directory wholesale, which keeps reruns after a
// partial failure idempotent.
type Store struct {
	dataRoot string
	now      func() time.Time
}

// RunPointer is the latest.json payload pointing at the newest run.
type RunPointer struct {
	RunID            string `json:"run_id"`
	RunDir           string `json:"run_dir"`
	SourceQueryRunID string `json:"source_query_run_id,omitempty"`
	NumRequests      int    `json:"num_requests"`
	Provider         string `json:"provider"`
	ModelName        string `json:"model_name"`
}

// NewStore creates a store rooted at dataRoot.
func NewStore(dataRoot string) *Store {
	return &Store{dataRoot: dataRoot, now: time.Now}
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.dataRoot, "teacher_outputs", runID)
}

// WriteRun persists the terminal records for one run: responses.jsonl,
// summary.json, and the latest.json pointer.
func (s *Store) WriteRun(runID, sourceQueryRunID, modelName string, records []OutputRecord) (*RunSummary, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id must not be empty")
	}
	seen := make(map[string]bool, len(records))
	var dups []string
	for _, rec := range records {
		if seen[rec.QueryID] {
			dups = append(dups, rec.QueryID)
		}
		seen[rec.QueryID] = true
	}
	if len(dups) > 0 {
		return nil, &pipeline.IntegrityError{Stage: "teacher_store", Reason: "multiple terminal records for query", IDs: dups}
	}

	dir := s.runDir(runID)
	if err := jsonl.WriteFile(filepath.Join(dir, "responses.jsonl"), records); err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunID:            runID,
		RunDir:           dir,
		SourceQueryRunID: sourceQueryRunID,
		ModelName:        modelName,
		NumRequests:      len(records),
		CreatedAt:        s.now().UTC(),
	}
	for _, rec := range records {
		if summary.Provider == "" {
			summary.Provider = rec.Provider
		}
		switch rec.Status {
		case StatusSuccess:
			summary.SuccessCount++
		case StatusFailed:
			summary.FailedCount++
		case StatusRejected:
			summary.RejectedCount++
		}
	}
	if err := jsonl.WriteJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
		return nil, err
	}

	pointer := RunPointer{
		RunID:            runID,
		RunDir:           dir,
		SourceQueryRunID: sourceQueryRunID,
		NumRequests:      len(records),
		Provider:         summary.Provider,
		ModelName:        modelName,
	}
	if err := jsonl.WriteJSON(filepath.Join(s.dataRoot, "teacher_outputs", "latest.json"), pointer); err != nil {
		return nil, err
	}
	return summary, nil
}

// ReadRun loads the terminal records of a run.
func (s *Store) ReadRun(runID string) ([]OutputRecord, error) {
	return jsonl.ReadFile[OutputRecord](filepath.Join(s.runDir(runID), "responses.jsonl"))
}

// Latest returns the pointer to the newest completed run.
func (s *Store) Latest() (*RunPointer, error) {
	var ptr RunPointer
	if err := jsonl.ReadJSON(filepath.Join(s.dataRoot, "teacher_outputs", "latest.json"), &ptr); err != nil {
		return nil, fmt.Errorf("resolve latest teacher run: %w", err)
	}
	if ptr.RunID == "" {
		return nil, fmt.Errorf("latest teacher pointer is incomplete")
	}
	return &ptr, nil
}
