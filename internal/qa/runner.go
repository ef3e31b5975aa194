package qa

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/logging"
)

// Report file names under reports_root/<run_id>/.
const (
	ValidationReportFile = "validation_report.json"
	StatsReportFile      = "stats_report.json"
	AnomalyReportFile    = "anomaly_report.json"
	BiasReportFile       = "bias_report.json"
)

// Runner executes the four quality-gate passes over one dataset run and
// writes their reports. Passes run concurrently; the dataset is shared
// read-only.
type Runner struct {
	validator   *Validator
	stats       *StatsComputer
	anomalies   *AnomalyDetector
	bias        *BiasSlicer
	reportsRoot string
	log         *logging.Logger
}

func NewRunner(cfg *config.Config, log *logging.Logger) *Runner {
	return &Runner{
		validator:   NewValidator(log),
		stats:       NewStatsComputer(cfg.Split.Ratios, log),
		anomalies:   NewAnomalyDetector(cfg.QA, cfg.Split.Ratios, log),
		bias:        NewBiasSlicer(cfg.QA.Bias, log),
		reportsRoot: cfg.ReportsRoot,
		log:         log,
	}
}

// Run executes all passes against the dataset and writes one report file
// per pass under reportsRoot/<run_id>/. Rerunning for the same run id
// overwrites the previous reports.
func (r *Runner) Run(ctx context.Context, art *dataset.Artifact) (*Reports, error) {
	ctx = logging.WithStage(ctx, "qa")
	reports := &Reports{}
	dir := filepath.Join(r.reportsRoot, art.RunID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reports.Validation = r.validator.Validate(gctx, art)
		return jsonl.WriteJSON(filepath.Join(dir, ValidationReportFile), reports.Validation)
	})
	g.Go(func() error {
		reports.Stats = r.stats.Compute(gctx, art)
		return jsonl.WriteJSON(filepath.Join(dir, StatsReportFile), reports.Stats)
	})
	g.Go(func() error {
		reports.Anomaly = r.anomalies.Detect(gctx, art)
		return jsonl.WriteJSON(filepath.Join(dir, AnomalyReportFile), reports.Anomaly)
	})
	g.Go(func() error {
		reports.Bias = r.bias.Slice(gctx, art)
		return jsonl.WriteJSON(filepath.Join(dir, BiasReportFile), reports.Bias)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.log.Info(ctx, "quality gate finished",
		zap.String("dataset_run_id", art.RunID),
		zap.Bool("valid", reports.Validation.Valid),
		zap.String("anomaly_severity", string(reports.Anomaly.Severity)),
		zap.Bool("bias_alert", reports.Bias.BiasAlert),
		zap.String("reports_dir", dir))
	return reports, nil
}
