// Package metrics provides custom Prometheus metrics for alert delivery.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks delivery of critical alerts to external sinks.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // by sink and status
	DeliveryDuration *prometheus.HistogramVec // by sink
	DeliveryErrors   *prometheus.CounterVec   // by sink and error category
	Timeouts         *prometheus.CounterVec   // by sink

	registry *prometheus.Registry
}

// NewNotificationMetrics creates a new instance of NotificationMetrics.
// It returns an error if metric registration fails.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_alert_deliveries_total",
			Help: "Total number of alert deliveries by sink and status",
		},
		[]string{"sink", "status"},
	)

	m.DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pestalert_alert_delivery_duration_seconds",
			Help:    "Time taken to deliver an alert",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10),
		},
		[]string{"sink"},
	)

	m.DeliveryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_alert_delivery_errors_total",
			Help: "Total number of failed alert deliveries by error category",
		},
		[]string{"sink", "error_category"},
	)

	m.Timeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_alert_delivery_timeouts_total",
			Help: "Total number of alert deliveries that hit their deadline",
		},
		[]string{"sink"},
	)
}

// RecordDelivery records a delivery attempt with its status and duration.
func (m *NotificationMetrics) RecordDelivery(sink, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(sink, status).Inc()
	m.DeliveryDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordDeliveryError records a failed delivery.
func (m *NotificationMetrics) RecordDeliveryError(sink, errorCategory string) {
	if m == nil {
		return
	}
	m.DeliveryErrors.WithLabelValues(sink, errorCategory).Inc()
}

// RecordTimeout records a delivery that ran out of time.
func (m *NotificationMetrics) RecordTimeout(sink string) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(sink).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
	m.DeliveryErrors.Collect(ch)
	m.Timeouts.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
	m.DeliveryErrors.Describe(ch)
	m.Timeouts.Describe(ch)
}
