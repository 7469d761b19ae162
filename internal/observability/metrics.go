// Package observability holds the Prometheus collectors shared across packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Query outcomes used as label values.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	queriesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitlog",
		Subsystem: "store",
		Name:      "queries_total",
		Help:      "Number of data access operations grouped by operation and outcome.",
	}, []string{"op", "outcome"})

	queryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitlog",
		Subsystem: "store",
		Name:      "query_duration_seconds",
		Help:      "Time spent executing data access operations.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})

	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitlog",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity row inserted.",
	})

	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitlog",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Number of activity events handed to the broker, labeled by type and outcome.",
	}, []string{"event_type", "outcome"})
)

func init() {
	prometheus.MustRegister(queriesCounter, queryDuration, activityPersistGauge, eventsCounter)
}

// RecordQuery counts one operation and observes its latency.
func RecordQuery(op, outcome string, elapsed time.Duration) {
	queriesCounter.WithLabelValues(op, outcome).Inc()
	queryDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordEventPublished counts a publish attempt.
func RecordEventPublished(eventType string, ok bool) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeError
	}
	eventsCounter.WithLabelValues(eventType, outcome).Inc()
}

// QueryCount returns the queries counter for op and outcome.
func QueryCount(op, outcome string) prometheus.Counter {
	return queriesCounter.WithLabelValues(op, outcome)
}

// EventCount returns the publish counter for eventType and outcome.
func EventCount(eventType, outcome string) prometheus.Counter {
	return eventsCounter.WithLabelValues(eventType, outcome)
}
