// Package main implements the distill CLI: capture teacher responses for
// synthetic queries, build the distillation dataset, and run the quality
// gate over it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/pipeline"
	"github.com/fitsenseai/distill/internal/qa"
	"github.com/fitsenseai/distill/internal/query"
	"github.com/fitsenseai/distill/internal/teacher"
)

var (
	configPath  string
	dataRoot    string
	reportsRoot string
	runID       string
	queriesPath string

	// version is set at build time via -ldflags.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Teacher-response capture and distillation dataset pipeline",
	Long: `distill drives the distillation data pipeline: it captures teacher model
responses for synthetic coaching queries, builds a filtered and split
training dataset from the accepted responses, and runs quality-gate
checks over the result.

Stages chain through latest.json pointers under data_root, so each
command picks up the newest upstream run unless told otherwise.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "override data_root from config")
	rootCmd.PersistentFlags().StringVar(&reportsRoot, "reports-root", "", "override reports_root from config")

	teacherCmd.Flags().StringVar(&runID, "run-id", "", "run id (default: new timestamp id)")
	teacherCmd.Flags().StringVar(&queriesPath, "queries", "", "queries JSONL path (default: latest generator run)")
	buildCmd.Flags().StringVar(&runID, "teacher-run", "", "teacher run id to build from (default: latest)")
	buildCmd.Flags().StringVar(&queriesPath, "queries", "", "queries JSONL path (default: latest generator run)")
	qaCmd.Flags().StringVar(&runID, "dataset-run", "", "dataset run id to check (default: latest)")
	runCmd.Flags().StringVar(&queriesPath, "queries", "", "queries JSONL path (default: latest generator run)")

	rootCmd.AddCommand(teacherCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(qaCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads config, applies flag overrides, and builds the logger.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dataRoot != "" {
		cfg.DataRoot = dataRoot
	}
	if reportsRoot != "" {
		cfg.ReportsRoot = reportsRoot
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

var teacherCmd = &cobra.Command{
	Use:   "teacher",
	Short: "Capture teacher responses for the latest synthetic queries",
	Long: `Capture one teacher response per synthetic query and write the run's
responses.jsonl, summary.json, and latest pointer under
data_root/teacher_outputs/<run_id>/.

Examples:
  # Capture with the mock provider against the latest query run
  distill teacher --config config.yaml

  # Re-capture under a fixed run id
  distill teacher --run-id 20260501T120000Z`,
	RunE: runTeacher,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the distillation dataset from a teacher run",
	Long: `Filter accepted teacher responses, join them with query metadata, and
write all_records/train/val/test JSONL plus summary under
data_root/distillation/<run_id>/.

Examples:
  # Build from the latest teacher run
  distill build --config config.yaml

  # Build from a specific teacher run
  distill build --teacher-run 20260501T120000Z`,
	RunE: runBuild,
}

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Run the quality gate over a built dataset",
	Long: `Run the validation, stats, anomaly, and bias passes over a dataset run
and write one JSON report per pass under reports_root/<run_id>/.

Exits non-zero when validation fails or anomaly severity reaches high.

Examples:
  # Check the latest dataset
  distill qa --config config.yaml

  # Check a specific dataset run
  distill qa --dataset-run 20260501T120000Z`,
	RunE: runQA,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run capture, build, and quality gate end to end",
	Long: `Run the full pipeline in sequence: teacher capture, dataset build, and
quality gate. Each stage feeds the next through its run artifacts.

Example:
  distill run --config config.yaml`,
	RunE: runAll,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the distill version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "distill", version)
	},
}

func runTeacher(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	_, err = captureTeacher(cmd, cfg, log)
	return err
}

func captureTeacher(cmd *cobra.Command, cfg *config.Config, log *logging.Logger) (*teacher.RunSummary, error) {
	path, queryRunID, err := resolveQueries(cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	queries, err := query.Load(path)
	if err != nil {
		return nil, err
	}

	client, err := teacher.NewClient(cfg.Teacher, cfg.Acceptance, log)
	if err != nil {
		return nil, err
	}
	runner := teacher.NewRunner(client, teacher.NewStore(cfg.DataRoot), log)

	id := runID
	if id == "" {
		id = pipeline.NewRunID()
	}
	summary, err := runner.Run(cmd.Context(), id, queryRunID, queries)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "teacher run %s: %d success, %d failed, %d rejected (%s)\n",
		summary.RunID, summary.SuccessCount, summary.FailedCount, summary.RejectedCount, summary.RunDir)
	return summary, nil
}

func resolveQueries(root string) (path, queryRunID string, err error) {
	if queriesPath != "" {
		return queriesPath, "", nil
	}
	return query.ResolveLatest(root)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	teacherRun := runID
	_, err = buildDataset(cmd, cfg, log, teacherRun)
	return err
}

func buildDataset(cmd *cobra.Command, cfg *config.Config, log *logging.Logger, teacherRun string) (*dataset.Artifact, error) {
	store := teacher.NewStore(cfg.DataRoot)
	if teacherRun == "" {
		ptr, err := store.Latest()
		if err != nil {
			return nil, fmt.Errorf("resolve latest teacher run: %w", err)
		}
		teacherRun = ptr.RunID
	}
	outputs, err := store.ReadRun(teacherRun)
	if err != nil {
		return nil, err
	}

	path, _, err := resolveQueries(cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	queries, err := query.Load(path)
	if err != nil {
		return nil, err
	}

	builder := dataset.NewBuilder(cfg.Split, cfg.Acceptance, cfg.DataRoot, log)
	art, err := builder.Build(cmd.Context(), teacherRun, outputs, queries)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dataset run %s: %d records (train %d, val %d, test %d) (%s)\n",
		art.RunID, art.NumAll,
		art.Counts[dataset.SplitTrain], art.Counts[dataset.SplitVal], art.Counts[dataset.SplitTest],
		art.RunDir)
	return art, nil
}

func runQA(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	datasetRun := runID
	if datasetRun == "" {
		ptr, err := dataset.ResolveLatest(cfg.DataRoot)
		if err != nil {
			return fmt.Errorf("resolve latest dataset run: %w", err)
		}
		datasetRun = ptr.RunID
	}
	art, err := dataset.LoadArtifact(cfg.DataRoot, datasetRun)
	if err != nil {
		return err
	}
	return runGate(cmd, cfg, log, art)
}

func runGate(cmd *cobra.Command, cfg *config.Config, log *logging.Logger, art *dataset.Artifact) error {
	reports, err := qa.NewRunner(cfg, log).Run(cmd.Context(), art)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "qa run %s: valid=%t severity=%s bias_alert=%t\n",
		art.RunID, reports.Validation.Valid, reports.Anomaly.Severity, reports.Bias.BiasAlert)

	if !reports.Validation.Valid {
		return fmt.Errorf("quality gate failed: %d validation errors", reports.Validation.NumErrors)
	}
	if reports.Anomaly.Severity.AtLeast(qa.SeverityHigh) {
		return fmt.Errorf("quality gate failed: anomaly severity %s", reports.Anomaly.Severity)
	}
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	summary, err := captureTeacher(cmd, cfg, log)
	if err != nil {
		return err
	}
	if summary.SuccessCount == 0 {
		return fmt.Errorf("teacher run %s produced no successful responses", summary.RunID)
	}
	art, err := buildDataset(cmd, cfg, log, summary.RunID)
	if err != nil {
		return err
	}
	return runGate(cmd, cfg, log, art)
}
