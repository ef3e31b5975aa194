package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/pipeline"
	"github.com/fitsenseai/distill/internal/query"
	"github.com/fitsenseai/distill/internal/teacher"
	"go.uber.org/zap"
)

// Builder turns a run's teacher outputs into the distillation dataset.
// Build is a pure function of (outputs, queries, config): re-running it for
// the same run id rewrites identical artifacts.
type Builder struct {
	split config.SplitConfig
	acc   config.Acceptance
	root  string
	log   *logging.Logger
}

// Summary is the summary.json payload of a built dataset run.
type Summary struct {
	RunID       string             `json:"run_id"`
	RunDir      string             `json:"run_dir"`
	SourceRunID string             `json:"source_teacher_run_id"`
	NumAll      int                `json:"num_all"`
	NumTrain    int                `json:"num_train"`
	NumVal      int                `json:"num_val"`
	NumTest     int                `json:"num_test"`
	Ratios      config.SplitRatios `json:"split_ratios"`
	Seed        int64              `json:"seed"`
	StrataKeys  []string           `json:"stratify_keys"`
}

// Pointer is the latest.json payload of the dataset stage.
type Pointer struct {
	RunID       string `json:"run_id"`
	RunDir      string `json:"run_dir"`
	SourceRunID string `json:"source_teacher_run_id"`
	NumAll      int    `json:"num_all"`
}

// NewBuilder creates a builder writing under dataRoot.
func NewBuilder(split config.SplitConfig, acc config.Acceptance, dataRoot string, log *logging.Logger) *Builder {
	if log == nil {
		log = logging.NewNop()
	}
	return &Builder{split: split, acc: acc, root: dataRoot, log: log}
}

// Build filters, joins, splits, and writes the dataset for one run.
//
// Error contract: *config.ConfigError for invalid split ratios (checked
// before anything is written), *EmptyDatasetError when nothing qualifies,
// *pipeline.IntegrityError for duplicate or unjoinable records.
func (b *Builder) Build(ctx context.Context, runID string, outputs []teacher.OutputRecord, queries []query.SyntheticQuery) (*Artifact, error) {
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithStage(ctx, "dataset")

	if err := b.split.Validate(); err != nil {
		return nil, err
	}

	queryByID := make(map[string]query.SyntheticQuery, len(queries))
	for _, q := range queries {
		if _, ok := queryByID[q.QueryID]; ok {
			return nil, &pipeline.IntegrityError{Stage: "dataset_build", Reason: "duplicate query_id in join input", IDs: []string{q.QueryID}}
		}
		queryByID[q.QueryID] = q
	}

	records := make([]Record, 0, len(outputs))
	seenID := make(map[string]string, len(outputs))
	kept, dropped := 0, 0

	for _, out := range outputs {
		if !b.qualifies(out) {
			dropped++
			continue
		}
		q, ok := queryByID[out.QueryID]
		if !ok {
			return nil, &pipeline.IntegrityError{Stage: "dataset_build", Reason: "teacher output references unknown query", IDs: []string{out.QueryID}}
		}
		if q.ScenarioID != out.ScenarioID || q.UserID != out.UserID {
			return nil, &pipeline.IntegrityError{Stage: "dataset_build", Reason: "teacher output disagrees with query metadata", IDs: []string{out.QueryID}}
		}

		recordID := pipeline.RecordID(out.QueryID, runID)
		if prev, ok := seenID[recordID]; ok {
			return nil, &pipeline.IntegrityError{Stage: "dataset_build", Reason: "duplicate record_id", IDs: []string{prev, out.QueryID}}
		}
		seenID[recordID] = out.QueryID

		rec := Record{
			RecordID:    recordID,
			QueryID:     out.QueryID,
			ScenarioID:  out.ScenarioID,
			UserID:      out.UserID,
			Instruction: out.PromptText,
			Context: Context{
				PromptType:                out.PromptType,
				SliceTags:                 q.SliceTags,
				ExpectedSafetyConstraints: constraintsOrEmpty(q.ExpectedSafetyConstraints),
				ContextSummary:            q.ContextSummary,
			},
			Response: out.ResponseText,
			Metadata: Metadata{
				Provider:     out.Provider,
				ModelName:    out.ModelName,
				AttemptCount: out.AttemptCount,
				LatencyMS:    out.LatencyMS,
				SourceRunID:  out.RunID,
				// Derived from the teacher record, not the wall clock, so a
				// rebuild from identical inputs is byte-identical.
				CreatedAt: out.CreatedAt,
			},
		}
		rec.Split = AssignSplit(Bucket(recordID, b.split.Seed), b.split.Ratios)
		records = append(records, rec)
		kept++
	}

	if kept == 0 {
		return nil, &EmptyDatasetError{RunID: runID}
	}

	// Canonical order: record_id. Input ordering must not leak into the
	// artifacts or rebuilds would diverge.
	sort.Slice(records, func(i, j int) bool { return records[i].RecordID < records[j].RecordID })

	b.checkStrata(ctx, records)

	sourceRunID := outputs[0].RunID
	artifact, err := b.write(runID, sourceRunID, records)
	if err != nil {
		return nil, err
	}

	b.log.Info(ctx, "built distillation dataset",
		zap.Int("kept", kept),
		zap.Int("dropped", dropped),
		zap.Int("train", artifact.Counts[SplitTrain]),
		zap.Int("val", artifact.Counts[SplitVal]),
		zap.Int("test", artifact.Counts[SplitTest]))
	return artifact, nil
}

// qualifies applies the acceptance filter: successful status, passing
// post-validation, no blocking safety flags, and minimum response length.
func (b *Builder) qualifies(out teacher.OutputRecord) bool {
	if out.Status != teacher.StatusSuccess {
		return false
	}
	response := strings.TrimSpace(out.ResponseText)
	if b.acc.MinResponseLen > 0 && len(response) < b.acc.MinResponseLen {
		return false
	}
	if b.acc.RequirePostValidation && !out.PostValidation.IsValid {
		return false
	}
	if b.acc.RejectOnSafetyFlags && len(out.SafetyFlags) > 0 {
		return false
	}
	return true
}

// checkStrata warns when a stratum's actual split proportions drift past
// the configured tolerance. Every split is checked, not just train, so an
// intra-stratum val/test imbalance surfaces too. Small strata drift freely
// by construction, so only groups big enough for the tolerance to be
// meaningful are checked.
func (b *Builder) checkStrata(ctx context.Context, records []Record) {
	strata := map[string]map[Split]int{}
	for _, rec := range records {
		key := StrataKey(b.split.StratifyKeys, rec.Context.PromptType, rec.Context.SliceTags)
		if strata[key] == nil {
			strata[key] = map[Split]int{}
		}
		strata[key][rec.Split]++
	}

	target := map[Split]float64{
		SplitTrain: b.split.Ratios.Train,
		SplitVal:   b.split.Ratios.Val,
		SplitTest:  b.split.Ratios.Test,
	}
	minSize := 1
	if b.split.Tolerance > 0 {
		minSize = int(1.0 / b.split.Tolerance)
	}
	for key, counts := range strata {
		total := 0
		for _, n := range counts {
			total += n
		}
		if total < minSize {
			continue
		}
		for _, split := range Splits {
			actual := float64(counts[split]) / float64(total)
			if dev := actual - target[split]; dev > b.split.Tolerance || dev < -b.split.Tolerance {
				b.log.Warn(ctx, "stratum split ratio outside tolerance",
					zap.String("stratum", key),
					zap.String("split", string(split)),
					zap.Int("n", total),
					zap.Float64("actual_ratio", actual),
					zap.Float64("target_ratio", target[split]))
			}
		}
	}
}

func (b *Builder) runDir(runID string) string {
	return filepath.Join(b.root, "distillation", runID)
}

func (b *Builder) write(runID, sourceRunID string, records []Record) (*Artifact, error) {
	dir := b.runDir(runID)
	bySplit := map[Split][]Record{}
	for _, rec := range records {
		bySplit[rec.Split] = append(bySplit[rec.Split], rec)
	}

	if err := jsonl.WriteFile(filepath.Join(dir, "all_records.jsonl"), records); err != nil {
		return nil, err
	}
	for _, split := range Splits {
		rows := bySplit[split]
		if rows == nil {
			rows = []Record{}
		}
		if err := jsonl.WriteFile(filepath.Join(dir, string(split)+".jsonl"), rows); err != nil {
			return nil, err
		}
	}

	summary := Summary{
		RunID:       runID,
		RunDir:      dir,
		SourceRunID: sourceRunID,
		NumAll:      len(records),
		NumTrain:    len(bySplit[SplitTrain]),
		NumVal:      len(bySplit[SplitVal]),
		NumTest:     len(bySplit[SplitTest]),
		Ratios:      b.split.Ratios,
		Seed:        b.split.Seed,
		StrataKeys:  b.split.StratifyKeys,
	}
	if err := jsonl.WriteJSON(filepath.Join(dir, "summary.json"), summary); err != nil {
		return nil, err
	}
	pointer := Pointer{RunID: runID, RunDir: dir, SourceRunID: sourceRunID, NumAll: len(records)}
	if err := jsonl.WriteJSON(filepath.Join(b.root, "distillation", "latest.json"), pointer); err != nil {
		return nil, err
	}

	return &Artifact{
		RunID:       runID,
		RunDir:      dir,
		SourceRunID: sourceRunID,
		Counts: map[Split]int{
			SplitTrain: summary.NumTrain,
			SplitVal:   summary.NumVal,
			SplitTest:  summary.NumTest,
		},
		NumAll:  len(records),
		Records: records,
	}, nil
}

func constraintsOrEmpty(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}

// LoadArtifact reads a previously built run back from disk.
func LoadArtifact(dataRoot, runID string) (*Artifact, error) {
	dir := filepath.Join(dataRoot, "distillation", runID)
	records, err := jsonl.ReadFile[Record](filepath.Join(dir, "all_records.jsonl"))
	if err != nil {
		return nil, err
	}

	var summary Summary
	if err := jsonl.ReadJSON(filepath.Join(dir, "summary.json"), &summary); err != nil {
		return nil, err
	}

	counts := map[Split]int{}
	for _, rec := range records {
		counts[rec.Split]++
	}
	return &Artifact{
		RunID:       runID,
		RunDir:      dir,
		SourceRunID: summary.SourceRunID,
		Counts:      counts,
		NumAll:      len(records),
		Records:     records,
	}, nil
}

// ResolveLatest follows the dataset stage's latest.json pointer.
func ResolveLatest(dataRoot string) (*Pointer, error) {
	var ptr Pointer
	if err := jsonl.ReadJSON(filepath.Join(dataRoot, "distillation", "latest.json"), &ptr); err != nil {
		return nil, fmt.Errorf("resolve latest dataset run: %w", err)
	}
	if ptr.RunID == "" {
		return nil, fmt.Errorf("latest dataset pointer is incomplete")
	}
	return &ptr, nil
}
