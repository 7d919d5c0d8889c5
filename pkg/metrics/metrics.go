// Package metrics registers the prometheus collectors shared across the
// ingest pipeline, data pipeline jobs, and the orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the service exposes. A single instance is
// constructed at startup and passed down via appctx-style wiring.
type Registry struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	IngestAcceptedTotal  *prometheus.CounterVec
	IngestRejectedTotal  *prometheus.CounterVec
	MeasurementsIngested prometheus.Counter

	RollupJobDuration    prometheus.Histogram
	RollupJobAffectedRows prometheus.Counter
	RetentionJobDuration prometheus.Histogram
	RetentionRowsDeleted *prometheus.CounterVec

	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	EMRSamplesDropped *prometheus.CounterVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_http_requests_total",
			Help: "Total HTTP requests handled, by route and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eos_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		IngestAcceptedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_ingest_accepted_total",
			Help: "Accepted ingest events, by channel code.",
		}, []string{"channel_code", "mapping_matched"}),
		IngestRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_ingest_rejected_total",
			Help: "Rejected ingest events, by reason.",
		}, []string{"reason"}),
		MeasurementsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "eos_signal_measurements_ingested_total",
			Help: "Signal measurements written to the backbone store.",
		}),
		RollupJobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eos_rollup_job_duration_seconds",
			Help:    "Duration of each rollup job run.",
			Buckets: prometheus.DefBuckets,
		}),
		RollupJobAffectedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "eos_rollup_job_affected_rows_total",
			Help: "Rows written by rollup job runs.",
		}),
		RetentionJobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eos_retention_job_duration_seconds",
			Help:    "Duration of each retention job run.",
			Buckets: prometheus.DefBuckets,
		}),
		RetentionRowsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_retention_rows_deleted_total",
			Help: "Rows deleted by retention job runs, by tier.",
		}, []string{"tier"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_orchestrator_runs_total",
			Help: "Orchestrator runs, by trigger source and final status.",
		}, []string{"trigger_source", "status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eos_orchestrator_run_duration_seconds",
			Help:    "Duration of orchestrator runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240},
		}),
		EMRSamplesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eos_emr_samples_dropped_total",
			Help: "Power samples dropped by the EMR integrator, by reason.",
		}, []string{"reason"}),
	}
}

// Handler returns the /metrics HTTP handler for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
