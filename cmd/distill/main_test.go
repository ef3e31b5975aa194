package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/query"
)

// seedQueries writes a generator run with its latest pointer under dataRoot.
func seedQueries(t *testing.T, dataRoot string, n int) {
	t.Helper()
	runDir := filepath.Join(dataRoot, "synthetic_queries", "qr-1")

	queries := make([]query.SyntheticQuery, 0, n)
	prompts := []string{
		query.PromptPlanCreation,
		query.PromptPlanModification,
		query.PromptSafetyAdjustment,
		query.PromptProgressAdaptation,
	}
	for i := 0; i < n; i++ {
		queries = append(queries, query.SyntheticQuery{
			QueryID:    fmt.Sprintf("q-%03d", i),
			ScenarioID: fmt.Sprintf("s-%03d", i),
			UserID:     fmt.Sprintf("u-%03d", i),
			PromptType: prompts[i%len(prompts)],
			PromptText: fmt.Sprintf("Create a training plan for user %d.", i),
			SliceTags: query.SliceTags{
				AgeBand:       "30-44",
				Sex:           []string{"female", "male"}[i%2],
				GoalType:      []string{"strength", "endurance"}[i%2],
				ActivityLevel: "moderate",
				ConditionFlag: "none",
			},
			ExpectedSafetyConstraints: []string{"avoid overexertion"},
		})
	}
	require.NoError(t, jsonl.WriteFile(filepath.Join(runDir, "queries.jsonl"), queries))
	require.NoError(t, jsonl.WriteJSON(filepath.Join(dataRoot, "synthetic_queries", "latest.json"),
		query.RunPointer{RunID: "qr-1", RunDir: runDir}))
}

// execute runs the CLI with args, resetting flag state between tests.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, dataRoot, reportsRoot, runID, queriesPath = "", "", "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRunEndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	reportsDir := t.TempDir()
	seedQueries(t, dataDir, 12)

	out, err := execute(t, "run",
		"--data-root", dataDir,
		"--reports-root", reportsDir,
		"--queries", filepath.Join(dataDir, "synthetic_queries", "qr-1", "queries.jsonl"))
	require.NoError(t, err, out)

	assert.Contains(t, out, "teacher run")
	assert.Contains(t, out, "12 success")
	assert.Contains(t, out, "dataset run")
	assert.Contains(t, out, "valid=true")

	assert.FileExists(t, filepath.Join(dataDir, "teacher_outputs", "latest.json"))
	assert.FileExists(t, filepath.Join(dataDir, "distillation", "latest.json"))
}

func TestStagesChainThroughLatestPointers(t *testing.T) {
	dataDir := t.TempDir()
	reportsDir := t.TempDir()
	seedQueries(t, dataDir, 8)

	out, err := execute(t, "teacher", "--data-root", dataDir, "--run-id", "tr-1")
	require.NoError(t, err, out)

	out, err = execute(t, "build", "--data-root", dataDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dataset run tr-1")

	out, err = execute(t, "qa", "--data-root", dataDir, "--reports-root", reportsDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "qa run tr-1")
	assert.FileExists(t, filepath.Join(reportsDir, "tr-1", "validation_report.json"))
	assert.FileExists(t, filepath.Join(reportsDir, "tr-1", "bias_report.json"))
}

func TestBuildWithoutTeacherRunFails(t *testing.T) {
	_, err := execute(t, "build", "--data-root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve latest teacher run")
}

func TestQAWithoutDatasetFails(t *testing.T) {
	_, err := execute(t, "qa", "--data-root", t.TempDir())
	require.Error(t, err)
}

func TestTeacherWithoutQueriesFails(t *testing.T) {
	_, err := execute(t, "teacher", "--data-root", t.TempDir())
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "distill")
}
