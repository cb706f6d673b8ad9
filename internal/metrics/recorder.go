package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for queue, build and stage metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe on the NoopRecorder so wiring a recorder stays optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(d time.Duration)
	ObserveQueueWait(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncBuildOutcome(outcome string) // outcome: completed|failed|cancelled
	IncJobRetry(stage string)
	IncRetryExhausted(stage string)
	SetQueueDepth(n int)
	SetActiveWorkers(n int)
	ObserveAssetQuality(score float64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)         {}
func (NoopRecorder) ObserveQueueWait(time.Duration)             {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncJobRetry(string)                         {}
func (NoopRecorder) IncRetryExhausted(string)                   {}
func (NoopRecorder) SetQueueDepth(int)                          {}
func (NoopRecorder) SetActiveWorkers(int)                       {}
func (NoopRecorder) ObserveAssetQuality(float64)                {}
