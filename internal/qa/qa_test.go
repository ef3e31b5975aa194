package qa

import (
	"fmt"
	"strings"
	"time"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/query"
)

var promptTypes = []string{
	query.PromptPlanCreation,
	query.PromptPlanModification,
	query.PromptSafetyAdjustment,
	query.PromptProgressAdaptation,
}

// testRecord builds a well-formed record with distinct content per index.
func testRecord(i int) dataset.Record {
	split := dataset.SplitTrain
	switch {
	case i%10 == 8:
		split = dataset.SplitVal
	case i%10 == 9:
		split = dataset.SplitTest
	}
	return dataset.Record{
		RecordID:    fmt.Sprintf("rec-%04d", i),
		QueryID:     fmt.Sprintf("q-%04d", i),
		ScenarioID:  fmt.Sprintf("s-%04d", i),
		UserID:      fmt.Sprintf("u-%04d", i),
		Instruction: fmt.Sprintf("Create a weekly training plan for user %d.", i),
		Context: dataset.Context{
			PromptType: promptTypes[i%len(promptTypes)],
			SliceTags: query.SliceTags{
				AgeBand:       []string{"18-29", "30-44", "45-59"}[i%3],
				Sex:           []string{"female", "male"}[i%2],
				GoalType:      []string{"strength", "endurance"}[i%2],
				ActivityLevel: "moderate",
				ConditionFlag: "none",
			},
		},
		Response: fmt.Sprintf("Weekly plan %d: three strength sessions with progressive overload, %s",
			i, strings.Repeat("rest and recovery guidance. ", 3)),
		Metadata: dataset.Metadata{
			Provider:     "mock",
			ModelName:    "teacher-mock-v1",
			AttemptCount: 1,
			LatencyMS:    12,
			SourceRunID:  "teacher-run-1",
			CreatedAt:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Split: split,
	}
}

func testArtifact(n int) *dataset.Artifact {
	records := make([]dataset.Record, 0, n)
	counts := map[dataset.Split]int{}
	for i := 0; i < n; i++ {
		rec := testRecord(i)
		records = append(records, rec)
		counts[rec.Split]++
	}
	return &dataset.Artifact{
		RunID:       "ds-run-1",
		SourceRunID: "teacher-run-1",
		Counts:      counts,
		NumAll:      n,
		Records:     records,
	}
}

func testQAConfig() config.QAConfig {
	return config.QAConfig{
		MinResponseLen:      40,
		MaxResponseLen:      4000,
		DuplicateThreshold:  0,
		SplitRatioTolerance: 0.05,
		Bias: config.BiasConfig{
			QualityProxy: "response_length",
			MinGroupSize: 5,
			GapThreshold: 120.0,
		},
	}
}

func testRatios() config.SplitRatios {
	return config.SplitRatios{Train: 0.8, Val: 0.1, Test: 0.1}
}
