// Package query models the synthetic queries consumed by the pipeline.
// Queries are produced by an external generator; this package only loads
// and integrity-checks them.
package query

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/pipeline"
)

// Prompt types the teacher understands.
const (
	PromptPlanCreation       = "plan_creation"
	PromptPlanModification   = "plan_modification"
	PromptSafetyAdjustment   = "safety_adjustment"
	PromptProgressAdaptation = "progress_adaptation"
)

// KnownPromptType reports whether t is one of the recognized prompt types.
func KnownPromptType(t string) bool {
	switch t {
	case PromptPlanCreation, PromptPlanModification, PromptSafetyAdjustment, PromptProgressAdaptation:
		return true
	}
	return false
}

// SliceTags are the categorical attributes used for coverage and bias
// analysis. Dimension names here must stay in sync with qa.SliceDimensions.
type SliceTags struct {
	AgeBand       string `json:"age_band"`
	Sex           string `json:"sex"`
	GoalType      string `json:"goal_type"`
	ActivityLevel string `json:"activity_level"`
	ConditionFlag string `json:"condition_flag"`
}

// Dimension returns the tag value for a named slice dimension, or "" for an
// unknown name.
func (s SliceTags) Dimension(name string) string {
	switch name {
	case "age_band":
		return s.AgeBand
	case "sex":
		return s.Sex
	case "goal_type":
		return s.GoalType
	case "activity_level":
		return s.ActivityLevel
	case "condition_flag":
		return s.ConditionFlag
	}
	return ""
}

// SyntheticQuery is one teacher-ready prompt with its slice metadata.
type SyntheticQuery struct {
	QueryID                   string          `json:"query_id"`
	ScenarioID                string          `json:"scenario_id"`
	UserID                    string          `json:"user_id"`
	PromptType                string          `json:"prompt_type"`
	PromptText                string          `json:"prompt_text"`
	SliceTags                 SliceTags       `json:"slice_tags"`
	ExpectedSafetyConstraints []string        `json:"expected_safety_constraints"`
	ContextSummary            json.RawMessage `json:"context_summary,omitempty"`
	SourceRunIDs              []string        `json:"source_run_ids,omitempty"`
}

// RunPointer is the latest.json payload a generator run leaves behind.
type RunPointer struct {
	RunID  string `json:"run_id"`
	RunDir string `json:"run_dir"`
}

// Load reads queries from a JSONL file and verifies input integrity:
// every query must carry an id, prompt text, and a known prompt type, and
// query ids must be unique. Violations are upstream defects, so Load fails
// rather than dropping rows.
func Load(path string) ([]SyntheticQuery, error) {
	queries, err := jsonl.ReadFile[SyntheticQuery](path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(queries))
	var dups []string
	for i, q := range queries {
		if q.QueryID == "" {
			return nil, fmt.Errorf("query %d: missing query_id", i)
		}
		if q.PromptText == "" {
			return nil, fmt.Errorf("query %s: missing prompt_text", q.QueryID)
		}
		if !KnownPromptType(q.PromptType) {
			return nil, fmt.Errorf("query %s: unknown prompt_type %q", q.QueryID, q.PromptType)
		}
		if seen[q.QueryID] {
			dups = append(dups, q.QueryID)
		}
		seen[q.QueryID] = true
	}
	if len(dups) > 0 {
		return nil, &pipeline.IntegrityError{Stage: "query_load", Reason: "duplicate query_id", IDs: dups}
	}
	return queries, nil
}

// ResolveLatest follows the generator's latest.json pointer under dataRoot
// and returns the path of the current queries file plus the generator run id.
func ResolveLatest(dataRoot string) (path, runID string, err error) {
	var ptr RunPointer
	if err := jsonl.ReadJSON(filepath.Join(dataRoot, "synthetic_queries", "latest.json"), &ptr); err != nil {
		return "", "", fmt.Errorf("resolve latest queries run: %w", err)
	}
	if ptr.RunDir == "" || ptr.RunID == "" {
		return "", "", fmt.Errorf("latest queries pointer is incomplete: %+v", ptr)
	}
	return filepath.Join(ptr.RunDir, "queries.jsonl"), ptr.RunID, nil
}
