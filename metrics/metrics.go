// Package metrics exposes Prometheus collectors for the
// reconciliation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SyncPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafegodns_sync_passes_total",
			Help: "Number of reconciliation passes per provider.",
		},
		[]string{"provider"},
	)

	RecordsChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafegodns_records_changed_total",
			Help: "Record mutations applied, by provider and operation.",
		},
		[]string{"provider", "operation"},
	)

	RecordErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafegodns_record_errors_total",
			Help: "Per-record failures during reconciliation.",
		},
		[]string{"provider"},
	)

	CacheRefreshFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafegodns_cache_refresh_failures_total",
			Help: "Failed full record listings (previous snapshot retained).",
		},
		[]string{"provider"},
	)

	OrphansDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trafegodns_orphans_deleted_total",
			Help: "Orphaned records deleted after the grace period.",
		},
		[]string{"provider"},
	)

	TrackedRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trafegodns_tracked_records",
			Help: "Tracked (owned) records per provider.",
		},
		[]string{"provider"},
	)
)

// Register adds all collectors to the default registry.
func Register() {
	prometheus.MustRegister(
		SyncPasses,
		RecordsChanged,
		RecordErrors,
		CacheRefreshFailures,
		OrphansDeleted,
		TrackedRecords,
	)
}
