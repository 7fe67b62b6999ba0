// Package metrics provides outbound HTTP metrics for observability
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to external HTTP services (classifier, token
// endpoint, weather). Labelled by host so query strings never leak.
type UpstreamMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics
func NewUpstreamMetrics(registry *prometheus.Registry) (*UpstreamMetrics, error) {
	m := &UpstreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register upstream metrics: %w", err)
	}
	return m, nil
}

func (m *UpstreamMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_upstream_requests_total",
			Help: "Total number of outbound HTTP requests",
		},
		[]string{"host", "method", "status_code"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pestalert_upstream_request_duration_seconds",
			Help:    "Round-trip time of outbound HTTP requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"host"},
	)

	m.requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pestalert_upstream_request_errors_total",
			Help: "Total number of outbound HTTP requests that failed without a response",
		},
		[]string{"host"},
	)
}

// Describe implements the Collector interface
func (m *UpstreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.requestDuration.Describe(ch)
	m.requestErrors.Describe(ch)
}

// Collect implements the Collector interface
func (m *UpstreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.requestDuration.Collect(ch)
	m.requestErrors.Collect(ch)
}

// ObserveRequest matches the httpclient after-response hook signature.
func (m *UpstreamMetrics) ObserveRequest(req *http.Request, resp *http.Response, err error, d time.Duration) {
	if m == nil || req == nil || req.URL == nil {
		return
	}
	host := req.URL.Host
	m.requestDuration.WithLabelValues(host).Observe(d.Seconds())
	if err != nil || resp == nil {
		m.requestErrors.WithLabelValues(host).Inc()
		return
	}
	m.requestsTotal.WithLabelValues(host, req.Method, strconv.Itoa(resp.StatusCode)).Inc()
}
