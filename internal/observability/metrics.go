// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// RedisCommandLatency records round-trip time per Redis command.
	RedisCommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsfeed_redis_command_latency_seconds",
		Help:    "Redis command latency in seconds",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	}, []string{"command"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsfeed_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// LikeToggles counts completed toggles by target kind and resulting state.
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_like_toggles_total",
		Help: "Like toggles by target kind and outcome (liked, unliked, rejected, failed)",
	}, []string{"kind", "outcome"})

	// LikeToggleConflicts counts unique-constraint conflicts resolved as deletes.
	LikeToggleConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_like_toggle_conflicts_total",
		Help: "Concurrent like inserts that lost the race and were retried",
	}, []string{"kind"})

	// UsageRecordings counts recorder outcomes by handler group.
	UsageRecordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsfeed_usage_recordings_total",
		Help: "Usage time recordings by handler group and outcome (recorded, skipped, failed)",
	}, []string{"group", "outcome"})

	// RecordedHandlerDuration is the per-group distribution of recorded handler time.
	RecordedHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newsfeed_recorded_handler_duration_seconds",
		Help:    "Handler time attributed to authenticated users",
		Buckets: prometheus.DefBuckets,
	}, []string{"group"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
