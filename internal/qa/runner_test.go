package qa

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/logging"
)

func testRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	cfg := config.Default()
	cfg.ReportsRoot = t.TempDir()
	return NewRunner(cfg, logging.NewNop()), cfg.ReportsRoot
}

func TestRunnerWritesAllReports(t *testing.T) {
	r, root := testRunner(t)
	art := testArtifact(20)

	reports, err := r.Run(context.Background(), art)
	require.NoError(t, err)

	require.NotNil(t, reports.Validation)
	require.NotNil(t, reports.Stats)
	require.NotNil(t, reports.Anomaly)
	require.NotNil(t, reports.Bias)
	assert.True(t, reports.Validation.Valid)
	assert.Equal(t, SeverityNone, reports.Anomaly.Severity)
	assert.False(t, reports.Bias.BiasAlert)

	dir := filepath.Join(root, art.RunID)
	for _, name := range []string{ValidationReportFile, StatsReportFile, AnomalyReportFile, BiasReportFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestRunnerReportsRoundTrip(t *testing.T) {
	r, root := testRunner(t)
	art := testArtifact(20)
	art.Records[3].Response = ""

	reports, err := r.Run(context.Background(), art)
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, reports.Anomaly.Severity)

	var anomaly AnomalyReport
	require.NoError(t, jsonl.ReadJSON(filepath.Join(root, art.RunID, AnomalyReportFile), &anomaly))
	assert.Equal(t, SeverityHigh, anomaly.Severity)
	assert.Equal(t, art.RunID, anomaly.SourceRunID)

	var validation ValidationReport
	require.NoError(t, jsonl.ReadJSON(filepath.Join(root, art.RunID, ValidationReportFile), &validation))
	assert.False(t, validation.Valid)
}

func TestRunnerRerunOverwrites(t *testing.T) {
	r, root := testRunner(t)
	art := testArtifact(20)
	art.Records[3].Response = ""

	_, err := r.Run(context.Background(), art)
	require.NoError(t, err)

	// Fix the defect and rerun for the same run id.
	art.Records[3] = testRecord(3)
	reports, err := r.Run(context.Background(), art)
	require.NoError(t, err)
	assert.Equal(t, SeverityNone, reports.Anomaly.Severity)

	var anomaly AnomalyReport
	require.NoError(t, jsonl.ReadJSON(filepath.Join(root, art.RunID, AnomalyReportFile), &anomaly))
	assert.Equal(t, SeverityNone, anomaly.Severity)
}
