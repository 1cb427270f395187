// Package metrics defines the Prometheus collectors exported by playscore.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playscore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playscore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "playscore_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playscore_conversions_total",
			Help: "Total number of conversions by mode and result code",
		},
		[]string{"mode", "result"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playscore_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"mode"},
	)

	MergedParts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playscore_merged_parts",
			Help:    "Number of parts in each merged score",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	ArchiveClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playscore_archive_classifications_total",
			Help: "Total number of inspected archives by detected payload kind",
		},
		[]string{"kind"},
	)
)

// ObserveConversion records one finished single or merge run.
func ObserveConversion(mode, result string, elapsed time.Duration) {
	ConversionsTotal.WithLabelValues(mode, result).Inc()
	ConversionDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
