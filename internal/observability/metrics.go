package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequests counts settled API requests by endpoint and status ("error" for transport failures).
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_api_requests_total",
		Help: "Total number of requests sent to the feed API",
	}, []string{"endpoint", "status"})

	// APIRequestLatency records API latency by endpoint.
	APIRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_api_request_duration_seconds",
		Help:    "Feed API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// OptimisticOutcomes counts settled optimistic mutations by field and outcome.
	OptimisticOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_optimistic_mutations_total",
		Help: "Settled optimistic mutations by field and outcome (confirmed, rolled_back)",
	}, []string{"field", "outcome"})

	// OptimisticRejected counts begin attempts rejected because the field was pending.
	OptimisticRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_optimistic_rejected_total",
		Help: "Mutations rejected because the same field was already pending",
	}, []string{"field"})

	// PollTicks counts poller invocations by poller name and result.
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_poll_ticks_total",
		Help: "Poller invocations by name and result",
	}, []string{"poller", "result"})

	// StaleResponses counts fetch responses discarded because a newer one was already applied.
	StaleResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_stale_responses_total",
		Help: "Responses discarded because a later-issued request already settled",
	}, []string{"source"})

	// UnreadNotifications is the last known unread counter.
	UnreadNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_unread_notifications",
		Help: "Current unread notification counter as displayed",
	})

	// MediaCacheResults counts media cache lookups by result (hit, miss, error).
	MediaCacheResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_media_cache_total",
		Help: "Media cache lookups by result",
	}, []string{"result"})
)

// APIMetrics records request metrics for one endpoint.
type APIMetrics struct{}

// NewAPIMetrics returns a new APIMetrics instance.
func NewAPIMetrics() *APIMetrics {
	return &APIMetrics{}
}

// Track returns a function that records latency and status when called (e.g. defer).
// A status of 0 is recorded as "error".
func (*APIMetrics) Track(endpoint string) func(status int) {
	start := time.Now()
	return func(status int) {
		APIRequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		label := "error"
		if status != 0 {
			label = strconv.Itoa(status)
		}
		APIRequests.WithLabelValues(endpoint, label).Inc()
	}
}

// RecordOptimistic increments the optimistic outcome counter.
func RecordOptimistic(field string, confirmed bool) {
	outcome := "confirmed"
	if !confirmed {
		outcome = "rolled_back"
	}
	OptimisticOutcomes.WithLabelValues(field, outcome).Inc()
}

// RedisErrors counts Redis errors by command.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedsync_redis_errors_total",
	Help: "Total number of Redis errors by command",
}, []string{"command"})
