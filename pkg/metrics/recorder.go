// Package metrics records pipeline stage metrics.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for pipeline and stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(pipeline string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(pipeline string, result ResultLabel)
	IncValidation(passed bool)
	SetArchiveSize(bytes int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string, ResultLabel)        {}
func (NoopRecorder) IncValidation(bool)                         {}
func (NoopRecorder) SetArchiveSize(int64)                       {}
