package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	attribution = "attribution"

	// Cache metrics
	cacheHitsTotal        = "cache_hits_total"
	cacheMissesTotal      = "cache_misses_total"
	coalescedTotal        = "coalesced_requests_total"
	computeTotal          = "computes_total"
	computeFailuresTotal  = "compute_failures_total"
	cacheSize             = "cache_size"
	inflightCount         = "inflight_requests"
	ledgerRestoredEntries = "ledger_restored_entries"

	// Monitor metrics
	jobsTracked      = "monitor_jobs_tracked"
	submissionsTotal = "monitor_submissions_total"
	schedulerCalls   = "monitor_scheduler_calls_total"

	// Labels
	jobStateLabel   = "state"
	outcomeLabel    = "outcome"
	schedulerLabel  = "command"
	callResultLabel = "result"
)

/**
* Metrics definition
**/
var cacheHitsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      cacheHitsTotal,
		Help:      "number of analysis requests served from cache",
	},
)

var cacheMissesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      cacheMissesTotal,
		Help:      "number of analysis requests that triggered a computation",
	},
)

var coalescedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      coalescedTotal,
		Help:      "number of requests attached to an in-flight computation",
	},
)

var computeTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      computeTotal,
		Help:      "number of analyzer invocations",
	},
)

var computeFailuresTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      computeFailuresTotal,
		Help:      "number of failed or timed out analyzer invocations",
	},
)

var cacheSizeMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: attribution,
		Name:      cacheSize,
		Help:      "number of entries currently cached",
	},
)

var inflightCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: attribution,
		Name:      inflightCount,
		Help:      "number of computations currently in flight",
	},
)

var ledgerRestoredEntriesMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: attribution,
		Name:      ledgerRestoredEntries,
		Help:      "number of ledger entries that survived validation on startup",
	},
)

var jobsTrackedMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: attribution,
		Name:      jobsTracked,
		Help:      "number of tracked scheduler jobs in each state",
	},
	[]string{jobStateLabel},
)

var submissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      submissionsTotal,
		Help:      "number of log submissions by outcome",
	},
	[]string{outcomeLabel},
)

var schedulerCallsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: attribution,
		Name:      schedulerCalls,
		Help:      "number of scheduler CLI invocations by command and result",
	},
	[]string{schedulerLabel, callResultLabel},
)

func IncreaseCacheHits()      { cacheHitsTotalMetric.Inc() }
func IncreaseCacheMisses()    { cacheMissesTotalMetric.Inc() }
func IncreaseCoalesced()      { coalescedTotalMetric.Inc() }
func IncreaseComputes()       { computeTotalMetric.Inc() }
func IncreaseComputeFailed()  { computeFailuresTotalMetric.Inc() }
func SetCacheSize(n int)      { cacheSizeMetric.Set(float64(n)) }
func SetInflightCount(n int)  { inflightCountMetric.Set(float64(n)) }
func SetLedgerRestored(n int) { ledgerRestoredEntriesMetric.Set(float64(n)) }

func UpdateJobStateCountMetric(state string, count int) {
	jobsTrackedMetric.With(prometheus.Labels{jobStateLabel: state}).Set(float64(count))
}

func IncreaseSubmissionsMetric(outcome string) {
	submissionsTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseSchedulerCallMetric(command string, result string) {
	schedulerCallsMetric.With(prometheus.Labels{schedulerLabel: command, callResultLabel: result}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(
		cacheHitsTotalMetric,
		cacheMissesTotalMetric,
		coalescedTotalMetric,
		computeTotalMetric,
		computeFailuresTotalMetric,
		cacheSizeMetric,
		inflightCountMetric,
		ledgerRestoredEntriesMetric,
		jobsTrackedMetric,
		submissionsTotalMetric,
		schedulerCallsMetric,
	)
}
