// Package metrics records answer pipeline metrics in Prometheus and reads
// aggregates back from a Prometheus server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineRecorder implements the agent's Recorder and the retriever's
// LockObserver with Prometheus collectors.
type PipelineRecorder struct {
	queriesTotal    *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	confidenceScore prometheus.Histogram
	degradesTotal   *prometheus.CounterVec
	fileLockTotal   *prometheus.CounterVec
}

// NewPipelineRecorder registers the pipeline collectors with reg.
func NewPipelineRecorder(reg prometheus.Registerer) *PipelineRecorder {
	factory := promauto.With(reg)
	return &PipelineRecorder{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeqa_queries_total",
				Help: "Total number of answered queries by strategy, confidence level and status",
			},
			[]string{"strategy", "confidence_level", "status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codeqa_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		confidenceScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "codeqa_confidence_score",
				Help:    "Confidence score of answered queries",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		degradesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeqa_degrades_total",
				Help: "Total number of degraded pipeline steps by kind",
			},
			[]string{"kind"},
		),
		fileLockTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codeqa_retrieval_file_lock_total",
				Help: "Retrievals by file-lock outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveStage records how long a stage took.
func (p *PipelineRecorder) ObserveStage(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveQuery records a finished query. Failed queries have no score.
func (p *PipelineRecorder) ObserveQuery(strategy, level string, score float64, status string) {
	p.queriesTotal.WithLabelValues(strategy, level, status).Inc()
	if strategy != "" {
		p.confidenceScore.Observe(score)
	}
}

// IncDegrade counts a degraded step.
func (p *PipelineRecorder) IncDegrade(kind string) {
	p.degradesTotal.WithLabelValues(kind).Inc()
}

// ObserveFileLock counts a file-lock outcome.
func (p *PipelineRecorder) ObserveFileLock(outcome string) {
	p.fileLockTotal.WithLabelValues(outcome).Inc()
}
