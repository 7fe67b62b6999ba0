// Package metrics provides analysis pipeline metrics for observability
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains Prometheus metrics for the analysis pipeline.
// All record methods are safe on a nil receiver.
type AnalysisMetrics struct {
	registry *prometheus.Registry

	analysesTotal       *prometheus.CounterVec
	analysisDuration    prometheus.Histogram
	stageDuration       *prometheus.HistogramVec
	stageErrorsTotal    *prometheus.CounterVec
	degradationsTotal   *prometheus.CounterVec
	validationFailures  *prometheus.CounterVec
	criticalAlertsTotal prometheus.Counter
	imageBytes          prometheus.Histogram
	analysesInFlight    prometheus.Gauge
}

// NewAnalysisMetrics creates and registers analysis metrics
func NewAnalysisMetrics(registry *prometheus.Registry) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

func (m *AnalysisMetrics) initMetrics() {
	m.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_analyses_total",
			Help: "Total number of analyses by outcome kind",
		},
		[]string{"kind"}, // kind: critical, preventive, normal, degraded, rejected, failed
	)

	m.analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "pestalert_analysis_duration_seconds",
		Help: "End-to-end analysis time",
		// 10ms to ~40s; classification calls dominate
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pestalert_stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"stage"}, // stage: validation, classification, risk, audio
	)

	m.stageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_stage_errors_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"stage", "category"},
	)

	m.degradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_degradations_total",
			Help: "Total number of recovery steps applied",
		},
		[]string{"step"},
	)

	m.validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_validation_failures_total",
			Help: "Total number of rejected images",
		},
		[]string{"reason"},
	)

	m.criticalAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pestalert_critical_alerts_total",
		Help: "Total number of critical alerts raised",
	})

	m.imageBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pestalert_image_bytes",
		Help:    "Size of submitted images",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB*16, BucketFactor2, BucketCount10), // 16KB to ~8MB
	})

	m.analysesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pestalert_analyses_in_flight",
		Help: "Number of analyses currently running",
	})
}

// Describe implements the Collector interface
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.analysesTotal.Describe(ch)
	m.analysisDuration.Describe(ch)
	m.stageDuration.Describe(ch)
	m.stageErrorsTotal.Describe(ch)
	m.degradationsTotal.Describe(ch)
	m.validationFailures.Describe(ch)
	m.criticalAlertsTotal.Describe(ch)
	m.imageBytes.Describe(ch)
	m.analysesInFlight.Describe(ch)
}

// Collect implements the Collector interface
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.analysesTotal.Collect(ch)
	m.analysisDuration.Collect(ch)
	m.stageDuration.Collect(ch)
	m.stageErrorsTotal.Collect(ch)
	m.degradationsTotal.Collect(ch)
	m.validationFailures.Collect(ch)
	m.criticalAlertsTotal.Collect(ch)
	m.imageBytes.Collect(ch)
	m.analysesInFlight.Collect(ch)
}

// AnalysisStarted marks an analysis in flight and returns a func ending it.
func (m *AnalysisMetrics) AnalysisStarted(imageSize int) func() {
	if m == nil {
		return func() {}
	}
	m.analysesInFlight.Inc()
	m.imageBytes.Observe(float64(imageSize))
	return m.analysesInFlight.Dec
}

// RecordAnalysis records a finished analysis with its outcome kind
func (m *AnalysisMetrics) RecordAnalysis(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.WithLabelValues(kind).Inc()
	m.analysisDuration.Observe(duration.Seconds())
}

// RecordStage records the duration of a pipeline stage
func (m *AnalysisMetrics) RecordStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStageError records a failed stage
func (m *AnalysisMetrics) RecordStageError(stage, category string) {
	if m == nil {
		return
	}
	m.stageErrorsTotal.WithLabelValues(stage, category).Inc()
}

// RecordDegradation records an applied recovery step
func (m *AnalysisMetrics) RecordDegradation(step string) {
	if m == nil {
		return
	}
	m.degradationsTotal.WithLabelValues(step).Inc()
}

// RecordValidationFailure records a rejected image
func (m *AnalysisMetrics) RecordValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(reason).Inc()
}

// RecordCriticalAlert records a critical decision
func (m *AnalysisMetrics) RecordCriticalAlert() {
	if m == nil {
		return
	}
	m.criticalAlertsTotal.Inc()
}
