package teacher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fitsenseai/distill/internal/teacher"

// Metrics instruments teacher calls. Instruments hang off the global otel
// meter, so they no-op unless the embedding process installs a meter
// provider.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	attempts  metric.Int64Counter
	terminals metric.Int64Counter
}

// NewMetrics creates the teacher-call instrument set.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"distill.teacher.call_duration_seconds",
		metric.WithDescription("Duration of individual teacher call attempts, labeled by provider and outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.attempts, err = m.meter.Int64Counter(
		"distill.teacher.attempts_total",
		metric.WithDescription("Total teacher call attempts including retries, labeled by provider and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create attempts counter", zap.Error(err))
	}

	m.terminals, err = m.meter.Int64Counter(
		"distill.teacher.records_total",
		metric.WithDescription("Terminal teacher output records by provider and status (success, failed, rejected)"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		m.logger.Warn("failed to create records counter", zap.Error(err))
	}
}

// RecordAttempt records one call attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, provider string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if IsTransient(err) {
			outcome = "transient_error"
		}
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.attempts != nil {
		m.attempts.Add(ctx, 1, attrs)
	}
}

// RecordTerminal records the terminal status of one query's invocation.
func (m *Metrics) RecordTerminal(ctx context.Context, provider string, status Status) {
	if m.terminals == nil {
		return
	}
	m.terminals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", string(status)),
	))
}
