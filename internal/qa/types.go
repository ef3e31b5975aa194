// Package qa implements the quality gate: four independent, read-only
// passes over a built distillation dataset, each emitting one JSON report.
// None of the passes mutates shared state, so they are safe to run
// concurrently and safe to re-run for the same run id.
package qa

import "time"

// Slice dimensions analyzed for coverage and bias. Must stay in sync with
// query.SliceTags.
var SliceDimensions = []string{"age_band", "sex", "goal_type", "activity_level", "condition_flag"}

// Severity grades anomaly findings on the ordered scale
// none < low < medium < high.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// maxSeverity returns the more severe of a and b.
func maxSeverity(a, b Severity) Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// FieldError is one schema violation found by the validator.
type FieldError struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

// ValidationReport is the validator's output.
type ValidationReport struct {
	CreatedAt   time.Time      `json:"created_at"`
	SourceRunID string         `json:"source_dataset_run_id"`
	NumRows     int            `json:"num_rows"`
	SplitSizes  map[string]int `json:"split_sizes"`
	NumErrors   int            `json:"num_errors"`
	Valid       bool           `json:"valid"`
	Errors      []FieldError   `json:"errors"`
}

// LengthStats summarizes the response-length distribution.
type LengthStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
}

// StatsReport is the stats computer's output.
type StatsReport struct {
	CreatedAt        time.Time                 `json:"created_at"`
	SourceRunID      string                    `json:"source_dataset_run_id"`
	NumRows          int                       `json:"num_rows"`
	SplitSizes       map[string]int            `json:"split_sizes"`
	ActualRatios     map[string]float64        `json:"actual_split_ratios"`
	ConfiguredRatios map[string]float64        `json:"configured_split_ratios"`
	PromptTypeCounts map[string]int            `json:"prompt_type_counts"`
	SliceCounts      map[string]map[string]int `json:"slice_counts"`
	ResponseLength   LengthStats               `json:"response_length"`
}

// Alert is one triggered anomaly rule.
type Alert struct {
	Rule        string   `json:"rule"`
	Severity    Severity `json:"severity"`
	AffectedIDs []string `json:"affected_ids"`
	Detail      string   `json:"detail,omitempty"`
}

// AnomalyReport is the anomaly detector's output. Severity is the maximum
// weight among triggered rules.
type AnomalyReport struct {
	CreatedAt   time.Time `json:"created_at"`
	SourceRunID string    `json:"source_dataset_run_id"`
	NumRows     int       `json:"num_rows"`
	Severity    Severity  `json:"severity"`
	Alerts      []Alert   `json:"alerts"`
}

// GroupStat is one group's quality proxy within a slice dimension.
type GroupStat struct {
	Group string  `json:"group"`
	N     int     `json:"n"`
	Stat  float64 `json:"stat"`
}

// DimensionGap is the per-dimension bias summary: group stats and the gap
// between the best and worst group.
type DimensionGap struct {
	Groups []GroupStat `json:"groups"`
	MaxGap float64     `json:"max_gap"`
}

// BiasReport is the bias slicer's output.
type BiasReport struct {
	CreatedAt    time.Time               `json:"created_at"`
	SourceRunID  string                  `json:"source_dataset_run_id"`
	NumRows      int                     `json:"num_rows"`
	QualityProxy string                  `json:"quality_proxy"`
	Threshold    float64                 `json:"gap_threshold"`
	MinGroupSize int                     `json:"min_group_size"`
	Gaps         map[string]DimensionGap `json:"gaps"`
	Flagged      []string                `json:"flagged_dimensions"`
	BiasAlert    bool                    `json:"bias_alert"`
}

// Reports bundles the four reports of one quality-gate run.
type Reports struct {
	Validation *ValidationReport `json:"validation"`
	Stats      *StatsReport      `json:"stats"`
	Anomaly    *AnomalyReport    `json:"anomaly"`
	Bias       *BiasReport       `json:"bias"`
}
