package qa

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/pipeline"
)

// Anomaly rule names. Each rule carries a fixed severity weight; the
// report severity is the maximum weight among triggered rules.
const (
	RuleDuplicatePairs = "duplicate_instruction_response_pairs"
	RuleMissingContent = "missing_or_empty_response"
	RuleLengthBounds   = "response_length_out_of_bounds"
	RuleSplitImbalance = "split_ratio_deviation"
)

var ruleSeverity = map[string]Severity{
	RuleDuplicatePairs: SeverityHigh,
	RuleMissingContent: SeverityHigh,
	RuleLengthBounds:   SeverityLow,
	RuleSplitImbalance: SeverityMedium,
}

// AnomalyDetector scans a built dataset for structural defects that the
// acceptance filter cannot catch: cross-record duplication, content that
// slipped through empty or out of bounds, and split drift.
type AnomalyDetector struct {
	cfg   config.QAConfig
	split config.SplitRatios
	log   *logging.Logger
	now   func() time.Time
}

func NewAnomalyDetector(cfg config.QAConfig, split config.SplitRatios, log *logging.Logger) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg, split: split, log: log, now: time.Now}
}

// Detect runs every rule and returns the aggregated report.
func (d *AnomalyDetector) Detect(ctx context.Context, art *dataset.Artifact) *AnomalyReport {
	report := &AnomalyReport{
		CreatedAt:   d.now().UTC(),
		SourceRunID: art.RunID,
		NumRows:     len(art.Records),
		Severity:    SeverityNone,
	}

	for _, check := range []func(*dataset.Artifact) *Alert{
		d.duplicatePairs,
		d.missingContent,
		d.lengthBounds,
		d.splitImbalance,
	} {
		if alert := check(art); alert != nil {
			report.Alerts = append(report.Alerts, *alert)
			report.Severity = maxSeverity(report.Severity, alert.Severity)
		}
	}

	if report.Severity == SeverityNone {
		d.log.Info(ctx, "no anomalies detected", zap.Int("num_rows", report.NumRows))
	} else {
		d.log.Warn(ctx, "anomalies detected",
			zap.String("severity", string(report.Severity)),
			zap.Int("num_alerts", len(report.Alerts)))
	}
	return report
}

// duplicatePairs flags records whose (instruction, response) pair occurs
// more than once. The pair is hashed so arbitrarily long content keys a
// small map. DuplicateThreshold is the number of extra occurrences
// tolerated before the rule fires.
func (d *AnomalyDetector) duplicatePairs(art *dataset.Artifact) *Alert {
	byPair := make(map[string][]string)
	for _, rec := range art.Records {
		key := pipeline.RecordID(rec.Instruction, rec.Response)
		byPair[key] = append(byPair[key], rec.RecordID)
	}

	var affected []string
	extras := 0
	for _, ids := range byPair {
		if len(ids) > 1 {
			extras += len(ids) - 1
			affected = append(affected, ids...)
		}
	}
	if extras <= d.cfg.DuplicateThreshold {
		return nil
	}
	sort.Strings(affected)
	return &Alert{
		Rule:        RuleDuplicatePairs,
		Severity:    ruleSeverity[RuleDuplicatePairs],
		AffectedIDs: affected,
		Detail:      fmt.Sprintf("%d duplicate occurrences (threshold %d)", extras, d.cfg.DuplicateThreshold),
	}
}

func (d *AnomalyDetector) missingContent(art *dataset.Artifact) *Alert {
	var affected []string
	for _, rec := range art.Records {
		if rec.Response == "" || rec.Instruction == "" {
			affected = append(affected, rec.RecordID)
		}
	}
	if len(affected) == 0 {
		return nil
	}
	return &Alert{
		Rule:        RuleMissingContent,
		Severity:    ruleSeverity[RuleMissingContent],
		AffectedIDs: affected,
		Detail:      fmt.Sprintf("%d records with missing instruction or response", len(affected)),
	}
}

func (d *AnomalyDetector) lengthBounds(art *dataset.Artifact) *Alert {
	// Zero bounds mean unbounded, as in the acceptance checks.
	var affected []string
	for _, rec := range art.Records {
		n := len(rec.Response)
		if n < d.cfg.MinResponseLen || (d.cfg.MaxResponseLen > 0 && n > d.cfg.MaxResponseLen) {
			affected = append(affected, rec.RecordID)
		}
	}
	if len(affected) == 0 {
		return nil
	}
	return &Alert{
		Rule:        RuleLengthBounds,
		Severity:    ruleSeverity[RuleLengthBounds],
		AffectedIDs: affected,
		Detail: fmt.Sprintf("%d records outside [%d, %d] chars",
			len(affected), d.cfg.MinResponseLen, d.cfg.MaxResponseLen),
	}
}

func (d *AnomalyDetector) splitImbalance(art *dataset.Artifact) *Alert {
	if len(art.Records) == 0 {
		return nil
	}
	sizes := splitSizes(art.Records)
	total := float64(len(art.Records))
	want := map[string]float64{
		string(dataset.SplitTrain): d.split.Train,
		string(dataset.SplitVal):   d.split.Val,
		string(dataset.SplitTest):  d.split.Test,
	}

	var detail string
	worst := 0.0
	for _, s := range dataset.Splits {
		actual := float64(sizes[string(s)]) / total
		dev := math.Abs(actual - want[string(s)])
		if dev > worst {
			worst = dev
			detail = fmt.Sprintf("%s ratio %.3f deviates from %.3f by %.3f (tolerance %.3f)",
				s, actual, want[string(s)], dev, d.cfg.SplitRatioTolerance)
		}
	}
	if worst <= d.cfg.SplitRatioTolerance {
		return nil
	}
	return &Alert{
		Rule:     RuleSplitImbalance,
		Severity: ruleSeverity[RuleSplitImbalance],
		Detail:   detail,
	}
}
