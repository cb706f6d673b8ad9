package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	stageDuration    *prom.HistogramVec
	buildDuration    prom.Histogram
	queueWait        prom.Histogram
	stageResults     *prom.CounterVec
	buildOutcome     *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec
	queueDepth       prom.Gauge
	activeWorkers    prom.Gauge
	assetQuality     prom.Histogram
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 12),
		})
		pr.queueWait = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "queue_wait_seconds",
			Help:      "Time a job spent queued before a worker claimed it",
			Buckets:   prom.ExponentialBuckets(0.1, 2, 14),
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "build_retries_total",
			Help:      "Total job retries after transient failures",
		}, []string{"stage"})
		pr.retriesExhausted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "appforge",
			Name:      "build_retry_exhausted_total",
			Help:      "Count of jobs whose retry budget ran out",
		}, []string{"stage"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "appforge",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting in the queue",
		})
		pr.activeWorkers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "appforge",
			Name:      "active_workers",
			Help:      "Workers currently executing a build",
		})
		pr.assetQuality = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "appforge",
			Name:      "asset_quality_score",
			Help:      "Asset pipeline quality score per build",
			Buckets:   prom.LinearBuckets(50, 5, 11),
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.queueWait,
			pr.stageResults, pr.buildOutcome, pr.retries, pr.retriesExhausted,
			pr.queueDepth, pr.activeWorkers, pr.assetQuality)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveQueueWait(d time.Duration) {
	if p == nil || p.queueWait == nil {
		return
	}
	p.queueWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncJobRetry(stage string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted(stage string) {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetActiveWorkers(n int) {
	if p == nil || p.activeWorkers == nil {
		return
	}
	p.activeWorkers.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveAssetQuality(score float64) {
	if p == nil || p.assetQuality == nil {
		return
	}
	p.assetQuality.Observe(score)
}
