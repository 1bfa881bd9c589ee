package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cspack/cspack/pkg/utils"
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "cspack"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	buildDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	validations   *prom.CounterVec
	archiveSize   prom.Gauge
}

// NewPrometheusRecorder constructs and registers the pipeline metrics.
// A nil registry gets a private one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Total pipeline duration",
			Buckets:   prom.DefBuckets,
		}, []string{"pipeline"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline outcomes by final status",
		}, []string{"pipeline", "result"}),
		validations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Validator verdicts",
		}, []string{"verdict"}),
		archiveSize: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "archive_size_bytes",
			Help:      "Size of the last written archive",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome, pr.validations, pr.archiveSize)
	return pr
}

// Registry returns the registry the metrics are registered with
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(pipeline string, d time.Duration) {
	p.buildDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(pipeline string, result ResultLabel) {
	p.buildOutcome.WithLabelValues(pipeline, string(result)).Inc()
}

func (p *PrometheusRecorder) IncValidation(passed bool) {
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	p.validations.WithLabelValues(verdict).Inc()
}

func (p *PrometheusRecorder) SetArchiveSize(bytes int64) {
	p.archiveSize.Set(float64(bytes))
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// suitable for the node exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := utils.EnsureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
