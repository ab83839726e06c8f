package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Mutation pipeline metrics
	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_registry_mutations_total",
			Help: "Total number of create/update/delete operations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	MutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "token_registry_mutation_duration_seconds",
			Help:    "Time spent inside the mutation pipeline, including lock wait",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "token_registry_quota_rejections_total",
			Help: "Total number of creates rejected because the owner is at quota",
		},
	)

	PreconditionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "token_registry_precondition_failures_total",
			Help: "Total number of requests rejected for a stale If-Match hash",
		},
	)

	// Index metrics
	TokensTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "token_registry_tokens_total",
			Help: "Number of tokens currently indexed, by deletion state",
		},
		[]string{"deleted"},
	)

	OwnersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "token_registry_owners_total",
			Help: "Number of distinct owners in the directory",
		},
	)

	ReindexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "token_registry_reindex_duration_seconds",
			Help:    "Time taken to rebuild the owner directory and all shards",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	ReindexTokensProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "token_registry_reindex_tokens_processed_total",
			Help: "Total number of tokens folded into a shard during re-index runs",
		},
	)

	// Peer refresh metrics
	PeerBroadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_registry_peer_broadcast_total",
			Help: "Total number of peer refresh broadcasts by outcome",
		},
		[]string{"outcome"},
	)

	PeerBroadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "token_registry_peer_broadcast_duration_seconds",
			Help:    "Time taken to fan a refresh notification out to every peer",
			Buckets: prometheus.DefBuckets,
		},
	)

	// KV adapter metrics
	KVCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_registry_kv_cache_total",
			Help: "Total number of KV adapter reads by cache outcome",
		},
		[]string{"outcome"},
	)

	// HTTP surface metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_registry_api_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "token_registry_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(MutationsTotal)
	prometheus.MustRegister(MutationDuration)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(PreconditionFailuresTotal)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(OwnersTotal)
	prometheus.MustRegister(ReindexDuration)
	prometheus.MustRegister(ReindexTokensProcessed)
	prometheus.MustRegister(PeerBroadcastTotal)
	prometheus.MustRegister(PeerBroadcastDuration)
	prometheus.MustRegister(KVCacheHitsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
