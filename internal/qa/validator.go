package qa

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/query"
)

// Validator checks every record of a built dataset against the schema
// contract. The checks are structural, so no thresholds apply; length and
// ratio policy lives in the anomaly detector. It never mutates the
// dataset; violations are reported, not repaired.
type Validator struct {
	log *logging.Logger
	now func() time.Time
}

func NewValidator(log *logging.Logger) *Validator {
	return &Validator{log: log, now: time.Now}
}

// Validate inspects the dataset and returns a report listing every field
// violation. Valid is true only when no violations were found.
func (v *Validator) Validate(ctx context.Context, art *dataset.Artifact) *ValidationReport {
	report := &ValidationReport{
		CreatedAt:   v.now().UTC(),
		SourceRunID: art.RunID,
		NumRows:     len(art.Records),
		SplitSizes:  splitSizes(art.Records),
	}

	seen := make(map[string]bool, len(art.Records))
	for _, rec := range art.Records {
		report.Errors = append(report.Errors, checkRecord(rec, seen)...)
	}

	report.NumErrors = len(report.Errors)
	report.Valid = report.NumErrors == 0
	if report.Valid {
		v.log.Info(ctx, "validation passed", zap.Int("num_rows", report.NumRows))
	} else {
		v.log.Warn(ctx, "validation found errors",
			zap.Int("num_rows", report.NumRows),
			zap.Int("num_errors", report.NumErrors))
	}
	return report
}

func checkRecord(rec dataset.Record, seen map[string]bool) []FieldError {
	var errs []FieldError
	add := func(field, reason string) {
		errs = append(errs, FieldError{RecordID: rec.RecordID, Field: field, Reason: reason})
	}

	if rec.RecordID == "" {
		add("record_id", "empty")
	} else if seen[rec.RecordID] {
		add("record_id", "duplicate")
	} else {
		seen[rec.RecordID] = true
	}
	if rec.QueryID == "" {
		add("query_id", "empty")
	}
	if rec.Instruction == "" {
		add("instruction", "empty")
	}
	if rec.Response == "" {
		add("response", "empty")
	}
	if !query.KnownPromptType(rec.Context.PromptType) {
		add("context.prompt_type", fmt.Sprintf("unknown prompt type %q", rec.Context.PromptType))
	}
	switch rec.Split {
	case dataset.SplitTrain, dataset.SplitVal, dataset.SplitTest:
	default:
		add("split", fmt.Sprintf("unknown split %q", rec.Split))
	}
	if rec.Metadata.Provider == "" {
		add("metadata.provider", "empty")
	}
	if rec.Metadata.ModelName == "" {
		add("metadata.model_name", "empty")
	}
	if rec.Metadata.SourceRunID == "" {
		add("metadata.source_run_id", "empty")
	}
	if rec.Metadata.CreatedAt.IsZero() {
		add("metadata.created_at", "zero timestamp")
	}
	return errs
}

func splitSizes(records []dataset.Record) map[string]int {
	sizes := make(map[string]int, len(dataset.Splits))
	for _, s := range dataset.Splits {
		sizes[string(s)] = 0
	}
	for _, rec := range records {
		sizes[string(rec.Split)]++
	}
	return sizes
}
