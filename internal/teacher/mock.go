package teacher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/query"
)

// mockProvider is a deterministic stand-in for offline and test runs.
// Identical query and config always yield an identical result, which is
// what makes full pipeline runs reproducible without network access.
type mockProvider struct {
	model string
}

func newMockProvider(cfg config.TeacherConfig) *mockProvider {
	model := cfg.ModelName
	if model == "" {
		model = "teacher-mock-v1"
	}
	return &mockProvider{model: model}
}

func (p *mockProvider) Name() string {
	return config.ProviderMock
}

func (p *mockProvider) Generate(_ context.Context, q query.SyntheticQuery) (*Result, error) {
	text := mockResponse(q)

	payload, err := json.Marshal(map[string]string{
		"provider": config.ProviderMock,
		"model":    p.model,
		"prompt":   q.PromptText,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mock payload: %w", err)
	}

	return &Result{
		Text:           text,
		RequestPayload: payload,
		RawResponse:    json.RawMessage(`{"mock":true}`),
	}, nil
}

// mockResponse emits templated coaching guidance keyed on prompt type and
// slice tags, long enough to clear default acceptance bounds.
func mockResponse(q query.SyntheticQuery) string {
	goal := q.SliceTags.GoalType
	if goal == "" {
		goal = "general_fitness"
	}
	activity := q.SliceTags.ActivityLevel
	if activity == "" {
		activity = "moderate"
	}
	constraints := "respect safety constraints"
	if len(q.ExpectedSafetyConstraints) > 0 {
		n := len(q.ExpectedSafetyConstraints)
		if n > 3 {
			n = 3
		}
		constraints = strings.Join(q.ExpectedSafetyConstraints[:n], "; ")
	}

	switch q.PromptType {
	case query.PromptPlanCreation:
		return fmt.Sprintf(
			"Weekly Plan (goal: %s, activity: %s): 4 training days, 2 active recovery days, 1 rest day. "+
				"Main lifts at RIR 2-3, accessory work at RIR 1-2, and progressive overload of 2-5%% weekly. "+
				"Safety: %s.", goal, activity, constraints)
	case query.PromptPlanModification:
		return "Plan Update: reduce total set volume by 10% for high-fatigue patterns, keep primary compound movement " +
			"first, and rotate one accessory exercise to reduce overuse risk. Maintain progression only when form is stable."
	case query.PromptSafetyAdjustment:
		return "Safety Adjustments: remove contraindicated high-impact or high-spinal-load movements, substitute with supported " +
			"variants, cap effort to RIR >= 2, and add longer rest intervals with pain-monitoring checkpoints."
	case query.PromptProgressAdaptation:
		return "Adaptation Strategy: if plateau persists for 2 weeks, apply a deload week (-20% volume), then resume progressive " +
			"loading with smaller increments and readiness-based set adjustments."
	}
	return "Provide safe, goal-aligned guidance with explicit progression and recovery instructions."
}
