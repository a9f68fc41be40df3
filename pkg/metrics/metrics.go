// Package metrics provides Prometheus metrics for identity resolution.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionRunsTotal counts compute, apply, reverse and auto-apply calls by outcome
	ResolutionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "runs_total",
			Help:      "Total number of resolution operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "duration_seconds",
			Help:      "Duration of resolution operations in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// ResolutionCandidatesTotal counts candidates produced per tier
	ResolutionCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "candidates_total",
			Help:      "Total number of match candidates produced by tier",
		},
		[]string{"tier"},
	)

	// ResolutionEdgesTotal counts edge materialization outcomes: created, existing, error
	ResolutionEdgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "edges_total",
			Help:      "Total number of same-person edges processed by outcome",
		},
		[]string{"outcome"},
	)

	LoaderSourceRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "loader",
			Name:      "source_rows",
			Help:      "Rows loaded from each source on the most recent load",
		},
		[]string{"source"},
	)

	LoaderSourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "loader",
			Name:      "source_errors_total",
			Help:      "Total number of source queries that failed and were skipped",
		},
		[]string{"source"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests by route, method and status code",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)

	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka",
		},
		[]string{"topic", "status"},
	)
)

func RecordResolution(operation, status string, durationSeconds float64) {
	ResolutionRunsTotal.WithLabelValues(operation, status).Inc()
	ResolutionDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func RecordCandidates(tier string, count int) {
	if count <= 0 {
		return
	}
	ResolutionCandidatesTotal.WithLabelValues(tier).Add(float64(count))
}

func RecordEdges(outcome string, count int) {
	if count <= 0 {
		return
	}
	ResolutionEdgesTotal.WithLabelValues(outcome).Add(float64(count))
}

func RecordSourceLoad(source string, rows int) {
	LoaderSourceRows.WithLabelValues(source).Set(float64(rows))
}

func RecordSourceError(source string) {
	LoaderSourceErrorsTotal.WithLabelValues(source).Inc()
}

func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

func RecordKafkaConsume(topic, status string) {
	KafkaMessagesConsumed.WithLabelValues(topic, status).Inc()
}

func RecordHTTPRequest(route, method string, code int, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(durationSeconds)
}
