package teacher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/logging"
	"github.com/fitsenseai/distill/internal/pipeline"
	"github.com/fitsenseai/distill/internal/query"
	"go.uber.org/zap"
)

// Client invokes the teacher capability and produces terminal, audited
// output records.
type Client struct {
	provider Provider
	cfg      config.TeacherConfig
	acc      config.Acceptance
	log      *logging.Logger
	metrics  *Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient selects the provider named by cfg and builds a client around
// it. Construction fails only on configuration defects (unknown provider,
// missing credential); call-time failures never escape Invoke.
func NewClient(cfg config.TeacherConfig, acc config.Acceptance, log *logging.Logger) (*Client, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case config.ProviderMock:
		provider = newMockProvider(cfg)
	case config.ProviderOpenAICompatible:
		provider, err = newOpenAIProvider(cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &config.ConfigError{Field: "teacher.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
	return newClientWith(provider, cfg, acc, log), nil
}

func newClientWith(provider Provider, cfg config.TeacherConfig, acc config.Acceptance, log *logging.Logger) *Client {
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		provider: provider,
		cfg:      cfg,
		acc:      acc,
		log:      log,
		metrics:  NewMetrics(log.Zap()),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Invoke issues the call for one query and returns its terminal record.
// It never returns an error: transient failures are retried with
// exponential backoff and, once retries are exhausted, downgraded to
// status=failed on the record.
func (c *Client) Invoke(ctx context.Context, q query.SyntheticQuery, runID string) OutputRecord {
	rec := OutputRecord{
		ResponseID:  pipeline.StableUUID("teacher_response", q.QueryID+":"+runID),
		QueryID:     q.QueryID,
		ScenarioID:  q.ScenarioID,
		UserID:      q.UserID,
		PromptType:  q.PromptType,
		PromptText:  q.PromptText,
		RunID:       runID,
		Provider:    c.provider.Name(),
		ModelName:   c.cfg.ModelName,
		SafetyFlags: []string{},
		CreatedAt:   c.now().UTC(),
	}

	maxAttempts := c.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// backoff_base * 2^(attempt-1): 1x, 2x, 4x, ...
			delay := c.cfg.BackoffBase.Duration() * (1 << (attempt - 1))
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		start := c.now()
		res, err := c.provider.Generate(ctx, q)
		latency := c.now().Sub(start).Milliseconds()

		rec.AttemptCount = attempt + 1
		rec.LatencyMS = latency
		rec.AttemptLatenciesMS = append(rec.AttemptLatenciesMS, latency)
		c.metrics.RecordAttempt(ctx, c.provider.Name(), time.Duration(latency)*time.Millisecond, err)

		if err == nil {
			c.finalize(ctx, &rec, res)
			return rec
		}

		lastErr = err
		if !IsTransient(err) {
			c.log.Warn(ctx, "teacher call failed terminally",
				zap.String("query_id", q.QueryID), zap.Int("attempt", attempt+1), zap.Error(err))
			break
		}
		c.log.Debug(ctx, "teacher call failed, will retry",
			zap.String("query_id", q.QueryID), zap.Int("attempt", attempt+1), zap.Error(err))
	}

	rec.Status = StatusFailed
	if lastErr != nil {
		rec.Error = lastErr.Error()
	} else {
		rec.Error = "unknown error"
	}
	c.metrics.RecordTerminal(ctx, c.provider.Name(), StatusFailed)
	return rec
}

// finalize runs the two independent acceptance checks on a transport
// success and settles the record's terminal status.
func (c *Client) finalize(ctx context.Context, rec *OutputRecord, res *Result) {
	rec.ResponseText = res.Text
	rec.RequestPayload = res.RequestPayload
	rec.RawResponse = res.RawResponse

	rec.PostValidation = PostValidate(res.Text, rec.PromptType, c.acc)
	if flags := ScanSafety(res.Text); len(flags) > 0 {
		rec.SafetyFlags = flags
	}

	var reasons []string
	if !rec.PostValidation.IsValid {
		reasons = append(reasons, rec.PostValidation.Reasons...)
	}
	if len(rec.SafetyFlags) > 0 {
		reasons = append(reasons, "blocking safety flags: "+strings.Join(rec.SafetyFlags, ", "))
	}

	if len(reasons) == 0 {
		rec.Status = StatusSuccess
	} else {
		rec.Status = StatusRejected
		rec.Error = strings.Join(reasons, "; ")
	}
	c.metrics.RecordTerminal(ctx, c.provider.Name(), rec.Status)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
