package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

// Context keys for build tracing
const (
	buildIDKey ctxKey = iota
	pipelineKey
	stageKey
	startTimeKey
)

// WithBuildID adds a build ID to the context
func WithBuildID(parent context.Context, buildID string) context.Context {
	if buildID == "" {
		buildID = GenerateBuildID()
	}
	return context.WithValue(parent, buildIDKey, buildID)
}

// GetBuildID retrieves the build ID from context
func GetBuildID(ctx context.Context) string {
	if id, ok := ctx.Value(buildIDKey).(string); ok && id != "" {
		return id
	}
	return ""
}

// WithPipeline records which pipeline (build, dev, validate) is running
func WithPipeline(parent context.Context, pipeline string) context.Context {
	return context.WithValue(parent, pipelineKey, pipeline)
}

// GetPipeline retrieves the pipeline name from context
func GetPipeline(ctx context.Context) string {
	if p, ok := ctx.Value(pipelineKey).(string); ok {
		return p
	}
	return ""
}

// WithStage adds a stage name to the context
func WithStage(parent context.Context, stage string) context.Context {
	return context.WithValue(parent, stageKey, stage)
}

// GetStage retrieves the stage name from context
func GetStage(ctx context.Context) string {
	if s, ok := ctx.Value(stageKey).(string); ok {
		return s
	}
	return ""
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the operation start time from context
func GetStartTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// GetDuration calculates the duration since the start time in context.
// Zero when no start time was recorded.
func GetDuration(ctx context.Context) time.Duration {
	start, ok := GetStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// GenerateBuildID creates a new unique build ID
func GenerateBuildID() string {
	return "build_" + uuid.New().String()
}

// NewBuildContext starts a traced pipeline run
func NewBuildContext(parent context.Context, pipeline string) context.Context {
	ctx := WithBuildID(parent, "")
	ctx = WithPipeline(ctx, pipeline)
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns common tracing fields for structured logging
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{}
	if id := GetBuildID(ctx); id != "" {
		fields["build_id"] = id
	}
	if p := GetPipeline(ctx); p != "" {
		fields["pipeline"] = p
	}
	if s := GetStage(ctx); s != "" {
		fields["stage"] = s
	}
	return fields
}
