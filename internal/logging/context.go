package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
)

type runIDCtxKey struct{}
type stageCtxKey struct{}

// WithRunID attaches a run identifier to the context. All log lines emitted
// with this context carry a run_id field.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext extracts the run identifier, or "" when absent.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithStage attaches the current pipeline stage name to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// StageFromContext extracts the stage name, or "" when absent.
func StageFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(stageCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}
	return fields
}

func stderr() *os.File {
	return os.Stderr
}
