// Package metrics provides Prometheus metrics for the report pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_reports_ingested_total",
			Help: "Total number of daily reports ingested successfully",
		},
	)
	ReportsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportboard_reports_failed_total",
			Help: "Total number of report ingestions that failed",
		},
		[]string{"stage"},
	)
	RowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportboard_rows_upserted_total",
			Help: "Total number of series rows written",
		},
		[]string{"series"},
	)
	AccumulatorSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportboard_accumulator_skips_total",
			Help: "Monthly accumulator updates skipped by guard",
		},
		[]string{"reason"},
	)
	CRMPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_crm_pages_fetched_total",
			Help: "Total number of CRM task pages fetched",
		},
	)
	CRMRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_crm_retries_total",
			Help: "Total number of retried CRM page requests",
		},
	)
	CRMFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_crm_fetch_failures_total",
			Help: "Total number of CRM fetches aborted after exhausted retries",
		},
	)
	ArtifactsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportboard_artifacts_rendered_total",
			Help: "Total number of artifact files rendered",
		},
		[]string{"category"},
	)
	ArtifactsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_artifacts_swept_total",
			Help: "Total number of expired artifact files deleted",
		},
	)
	SyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportboard_sync_failures_total",
			Help: "Total number of failed artifact sync batches",
		},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportboard_queue_depth",
			Help: "Jobs currently waiting in the pipeline queue",
		},
	)
	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportboard_pipeline_duration_seconds",
			Help:    "Duration of one pipeline invocation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)

func RecordPipelineRun(kind string, duration time.Duration) {
	PipelineDuration.WithLabelValues(kind).Observe(duration.Seconds())
}
