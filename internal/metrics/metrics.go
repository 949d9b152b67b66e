package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Merge outcomes.
const (
	MergeAdded     = "added"
	MergeReplaced  = "replaced"
	MergeDiscarded = "discarded"
)

// Bundle request outcomes.
const (
	RequestHit    = "hit"
	RequestMiss   = "miss"
	RequestShared = "shared"
	RequestError  = "error"
)

var (
	// Registry
	RegistryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlereg_registry_entries",
		Help: "Number of bundle metadata records held in the registry.",
	})
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlereg_merge_total",
		Help: "Incoming metadata records by merge outcome.",
	}, []string{"result"}) // result: added, replaced, discarded

	// Metadata sync
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlereg_source_fetches_total",
		Help: "Metadata source fetches by status.",
	}, []string{"status"}) // status: ok, error
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bundlereg_sync_duration_seconds",
		Help:    "Duration of a full metadata sync across all sources.",
		Buckets: prometheus.DefBuckets,
	})

	// Bundle cache
	BundleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlereg_bundle_requests_total",
		Help: "Bundle payload requests by result.",
	}, []string{"result"}) // result: hit, miss, shared, error
	BundleFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bundlereg_bundle_fetch_duration_seconds",
		Help:    "Duration of bundle payload downloads.",
		Buckets: prometheus.DefBuckets,
	})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlereg_cache_entries",
		Help: "Number of bundle payloads held in the cache.",
	})
	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bundlereg_cache_bytes",
		Help: "Total size of cached bundle payloads in bytes.",
	})
	Unloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlereg_unloads_total",
		Help: "Number of bulk cache unloads.",
	})
)

// RecordMerge adds the outcome counts of one merge.
func RecordMerge(added, replaced, discarded int) {
	MergeTotal.WithLabelValues(MergeAdded).Add(float64(added))
	MergeTotal.WithLabelValues(MergeReplaced).Add(float64(replaced))
	MergeTotal.WithLabelValues(MergeDiscarded).Add(float64(discarded))
}

// RecordSourceFetch counts one metadata source fetch.
func RecordSourceFetch(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SourceFetches.WithLabelValues(status).Inc()
}

// RecordSyncDuration records the time taken for a full sync.
func RecordSyncDuration(start time.Time) {
	SyncDuration.Observe(time.Since(start).Seconds())
}

// RecordBundleFetchDuration records the time taken for one payload download.
func RecordBundleFetchDuration(start time.Time) {
	BundleFetchDuration.Observe(time.Since(start).Seconds())
}
