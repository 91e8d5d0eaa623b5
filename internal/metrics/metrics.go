// Package metrics provides Prometheus metrics for fault aggregation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reporter tracks aggregation activity and syncs with Prometheus
type Reporter struct{}

// NewReporter creates a metrics reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// RecordReport records one completed report call with its outcome:
// "created", "recurred" or "failed".
func (r *Reporter) RecordReport(outcome string, duration time.Duration) {
	reportsTotal.WithLabelValues(outcome).Inc()
	reportDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordOrphanDeleted records one orphaned notification reconciled after a
// lost create race.
func (r *Reporter) RecordOrphanDeleted() {
	orphansDeleted.Inc()
}

// RecordOrphanDeleteFailed records a failed orphan reconciliation.
func (r *Reporter) RecordOrphanDeleteFailed() {
	orphanDeleteFailures.Inc()
}

// RecordRetrieval records one detail retrieval with its result: "served" or
// "absent".
func (r *Reporter) RecordRetrieval(result string) {
	retrievalsTotal.WithLabelValues(result).Inc()
}

// RecordStoreError records one incident store I/O failure.
func (r *Reporter) RecordStoreError() {
	storeErrors.Inc()
}

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_reports_total",
			Help: "Total number of fault report calls by outcome",
		},
		[]string{"outcome"},
	)

	reportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_report_duration_seconds",
			Help:    "Time spent completing one aggregation cycle",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	orphansDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_orphans_deleted_total",
			Help: "Total number of orphaned notifications deleted after a lost create race",
		},
	)

	orphanDeleteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_orphan_delete_failures_total",
			Help: "Total number of orphan deletions that failed and were left behind",
		},
	)

	retrievalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_retrievals_total",
			Help: "Total number of diagnostic detail retrievals by result",
		},
		[]string{"result"},
	)

	storeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "faultline_store_errors_total",
			Help: "Total number of incident store I/O failures",
		},
	)
)

func init() {
	prometheus.MustRegister(
		reportsTotal,
		reportDuration,
		orphansDeleted,
		orphanDeleteFailures,
		retrievalsTotal,
		storeErrors,
	)
}
