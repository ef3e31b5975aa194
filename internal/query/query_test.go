package query

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fitsenseai/distill/internal/jsonl"
	"github.com/fitsenseai/distill/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQueries(t *testing.T, rows []SyntheticQuery) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	require.NoError(t, jsonl.WriteFile(path, rows))
	return path
}

func validQuery(id string) SyntheticQuery {
	return SyntheticQuery{
		QueryID:    id,
		ScenarioID: "sc-" + id,
		UserID:     "u-" + id,
		PromptType: PromptPlanCreation,
		PromptText: "Create a weekly plan for this user.",
		SliceTags: SliceTags{
			AgeBand:       "25-34",
			Sex:           "female",
			GoalType:      "strength",
			ActivityLevel: "moderate",
			ConditionFlag: "none",
		},
	}
}

func TestLoad(t *testing.T) {
	path := writeQueries(t, []SyntheticQuery{validQuery("q1"), validQuery("q2")})
	queries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "q1", queries[0].QueryID)
	assert.Equal(t, "strength", queries[0].SliceTags.GoalType)
}

func TestLoadDuplicateQueryID(t *testing.T) {
	path := writeQueries(t, []SyntheticQuery{validQuery("q1"), validQuery("q1")})
	_, err := Load(path)
	require.Error(t, err)

	var ie *pipeline.IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, []string{"q1"}, ie.IDs)
}

func TestLoadRejectsMalformedQueries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SyntheticQuery)
		want   string
	}{
		{"missing id", func(q *SyntheticQuery) { q.QueryID = "" }, "missing query_id"},
		{"missing prompt", func(q *SyntheticQuery) { q.PromptText = "" }, "missing prompt_text"},
		{"unknown prompt type", func(q *SyntheticQuery) { q.PromptType = "meal_plan" }, "unknown prompt_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery("q1")
			tt.mutate(&q)
			_, err := Load(writeQueries(t, []SyntheticQuery{q}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSliceTagsDimension(t *testing.T) {
	tags := validQuery("q1").SliceTags
	assert.Equal(t, "25-34", tags.Dimension("age_band"))
	assert.Equal(t, "none", tags.Dimension("condition_flag"))
	assert.Equal(t, "", tags.Dimension("height"))
}

func TestResolveLatest(t *testing.T) {
	dataRoot := t.TempDir()
	runDir := filepath.Join(dataRoot, "synthetic_queries", "20240101T000000Z")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, jsonl.WriteJSON(
		filepath.Join(dataRoot, "synthetic_queries", "latest.json"),
		RunPointer{RunID: "20240101T000000Z", RunDir: runDir},
	))

	path, runID, err := ResolveLatest(dataRoot)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(runDir, "queries.jsonl"), path)
	assert.Equal(t, "20240101T000000Z", runID)
}

func TestResolveLatestMissingPointer(t *testing.T) {
	_, _, err := ResolveLatest(t.TempDir())
	assert.Error(t, err)
}
