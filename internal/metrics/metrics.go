// Package metrics defines the Prometheus collectors exported by the queue processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "event_queue"

var (
	// EventsPushed counts accepted pushes by event key.
	EventsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_pushed_total",
		Help:      "Events enqueued by producers.",
	}, []string{"key"})

	// EventsClaimed counts successful pending to delivered transitions.
	EventsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_claimed_total",
		Help:      "Events claimed by consumers.",
	})

	// ClaimConflicts counts claims lost to a concurrent consumer.
	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_conflicts_total",
		Help:      "Claim attempts that found the event already taken.",
	})

	// EventsAcked counts successful delivered to processed transitions.
	EventsAcked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_acked_total",
		Help:      "Events acknowledged by consumers.",
	})

	// StuckEvents is the last count reported by the stuck-event monitor.
	StuckEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stuck_events",
		Help:      "Delivered events older than the acknowledgement threshold at the last check.",
	})

	// RowsPurged counts rows deleted by the retention jobs per collection.
	RowsPurged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_purged_total",
		Help:      "Rows deleted by retention jobs.",
	}, []string{"collection"})

	// JobRuns counts scheduled job runs by job id and outcome.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by outcome (completed, failed, skipped).",
	}, []string{"job", "outcome"})

	// JobDuration observes scheduled job run time.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Scheduled job run duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	// HTTPRequests counts API requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests by route and status.",
	}, []string{"method", "route", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
