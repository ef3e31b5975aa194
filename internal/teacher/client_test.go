package teacher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider fails a fixed number of times before succeeding.
type scriptedProvider struct {
	failures  int
	transient bool
	text      string
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, _ query.SyntheticQuery) (*Result, error) {
	p.calls++
	if p.calls <= p.failures {
		err := fmt.Errorf("scripted failure %d", p.calls)
		if p.transient {
			return nil, Transient(err)
		}
		return nil, err
	}
	return &Result{Text: p.text}, nil
}

func testQuery() query.SyntheticQuery {
	return query.SyntheticQuery{
		QueryID:    "q-001",
		ScenarioID: "sc-001",
		UserID:     "u-001",
		PromptType: query.PromptPlanCreation,
		PromptText: "Create a weekly plan.",
		SliceTags:  query.SliceTags{GoalType: "strength", ActivityLevel: "high"},
	}
}

const goodResponse = "Weekly Plan: 4 training days with RIR 2-3 on main lifts, " +
	"progressive overload of 2-5% weekly, and mandatory rest days for safety."

func testClient(p Provider, maxRetries int) *Client {
	cfg := config.TeacherConfig{
		Provider:    "mock",
		ModelName:   "test-model",
		MaxRetries:  maxRetries,
		BackoffBase: config.Duration(time.Millisecond),
		Workers:     1,
	}
	acc := config.Acceptance{MinResponseLen: 40, MaxResponseLen: 4000}
	c := newClientWith(p, cfg, acc, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestInvokeRetriesThenSucceeds(t *testing.T) {
	// max_retries=2, provider fails twice then succeeds -> success on attempt 3.
	p := &scriptedProvider{failures: 2, transient: true, text: goodResponse}
	c := testClient(p, 2)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.Len(t, rec.AttemptLatenciesMS, 3)
	assert.Empty(t, rec.Error)
	assert.Equal(t, goodResponse, rec.ResponseText)
	assert.True(t, rec.PostValidation.IsValid)
}

func TestInvokeExhaustsRetries(t *testing.T) {
	p := &scriptedProvider{failures: 10, transient: true}
	c := testClient(p, 2)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.AttemptCount)
	assert.Contains(t, rec.Error, "scripted failure 3")
	assert.Empty(t, rec.ResponseText)
}

func TestInvokeTerminalErrorDoesNotRetry(t *testing.T) {
	p := &scriptedProvider{failures: 10, transient: false}
	c := testClient(p, 5)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)
	assert.Equal(t, 1, p.calls)
}

func TestInvokeRejectsShortResponse(t *testing.T) {
	p := &scriptedProvider{text: "too short"}
	c := testClient(p, 0)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusRejected, rec.Status)
	assert.Contains(t, rec.Error, "length")
	assert.False(t, rec.PostValidation.IsValid)
	// The response itself is still kept for audit.
	assert.Equal(t, "too short", rec.ResponseText)
}

func TestInvokeRejectsOnSafetyFlag(t *testing.T) {
	p := &scriptedProvider{text: "Push hard and max out every session; this plan covers all safety bases and recovery work."}
	c := testClient(p, 0)

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusRejected, rec.Status)
	assert.Contains(t, rec.SafetyFlags, FlagOverexertion)
	assert.Contains(t, rec.Error, FlagOverexertion)
}

func TestInvokeDeterministicResponseID(t *testing.T) {
	p := &scriptedProvider{text: goodResponse}
	c := testClient(p, 0)

	a := c.Invoke(context.Background(), testQuery(), "run-1")
	p.calls = 0
	b := c.Invoke(context.Background(), testQuery(), "run-1")
	p.calls = 0
	other := c.Invoke(context.Background(), testQuery(), "run-2")

	assert.Equal(t, a.ResponseID, b.ResponseID)
	assert.NotEqual(t, a.ResponseID, other.ResponseID)
}

func TestInvokeCancelledDuringBackoff(t *testing.T) {
	p := &scriptedProvider{failures: 10, transient: true}
	c := testClient(p, 5)
	c.sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }

	rec := c.Invoke(context.Background(), testQuery(), "run-1")

	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)
	assert.Contains(t, rec.Error, "context canceled")
}

func TestNewClientUnknownProvider(t *testing.T) {
	cfg := config.TeacherConfig{Provider: "carrier-pigeon"}
	_, err := NewClient(cfg, config.Acceptance{}, nil)
	require.Error(t, err)

	var ce *config.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestNewClientOpenAIMissingKey(t *testing.T) {
	t.Setenv("DISTILL_TEST_ABSENT_KEY", "")
	cfg := config.TeacherConfig{
		Provider:    config.ProviderOpenAICompatible,
		EndpointURL: "http://localhost:9/v1/chat/completions",
		APIKeyEnv:   "DISTILL_TEST_ABSENT_KEY",
	}
	_, err := NewClient(cfg, config.Acceptance{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISTILL_TEST_ABSENT_KEY")
}
