// Package dataset builds the distillation dataset from accepted teacher
// outputs: filter, join with query metadata, assign deterministic record
// ids and stable stratified splits, and write the run's JSONL artifacts.
package dataset

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fitsenseai/distill/internal/query"
)

// Split names the partition a record belongs to.
type Split string

const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists the partitions in canonical order.
var Splits = []Split{SplitTrain, SplitVal, SplitTest}

// Context carries the query-side metadata a student model trains against.
type Context struct {
	PromptType                string          `json:"prompt_type"`
	SliceTags                 query.SliceTags `json:"slice_tags"`
	ExpectedSafetyConstraints []string        `json:"expected_safety_constraints"`
	ContextSummary            json.RawMessage `json:"context_summary,omitempty"`
}

// Metadata records the provenance of the teacher response.
type Metadata struct {
	Provider     string    `json:"provider"`
	ModelName    string    `json:"model_name"`
	AttemptCount int       `json:"attempt_count"`
	LatencyMS    int64     `json:"latency_ms"`
	SourceRunID  string    `json:"source_run_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Record is one distillation training example. Immutable after creation;
// rebuilding from identical inputs reproduces it byte for byte.
type Record struct {
	RecordID    string   `json:"record_id"`
	QueryID     string   `json:"query_id"`
	ScenarioID  string   `json:"scenario_id"`
	UserID      string   `json:"user_id"`
	Instruction string   `json:"instruction"`
	Context     Context  `json:"context"`
	Response    string   `json:"response"`
	Metadata    Metadata `json:"metadata"`
	Split       Split    `json:"split"`
}

// Artifact describes one built dataset run on disk.
type Artifact struct {
	RunID       string        `json:"run_id"`
	RunDir      string        `json:"run_dir"`
	SourceRunID string        `json:"source_teacher_run_id"`
	Counts      map[Split]int `json:"counts"`
	NumAll      int           `json:"num_all"`

	// Records are the all_records contents in record_id order.
	Records []Record `json:"-"`
}

// EmptyDatasetError means zero teacher outputs qualified after filtering.
type EmptyDatasetError struct {
	RunID string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("run %s: no records qualify after filtering", e.RunID)
}
