// Package metrics provides Prometheus metrics for Tribuna Storage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the storage core.
type Metrics struct {
	registry *prometheus.Registry

	// Downloads
	DownloadsTotal      *prometheus.CounterVec
	DownloadBytesTotal  prometheus.Counter
	DownloadDuration    prometheus.Histogram
	StreamInterruptions prometheus.Counter

	// Uploads
	UploadURLsIssued *prometheus.CounterVec
	UploadsFinalized *prometheus.CounterVec
	SigningFailures  prometheus.Counter

	// Access decisions
	AccessDecisions *prometheus.CounterVec

	// Diagnostics
	DiagnosticRuns    prometheus.Counter
	DiagnosticIssues  prometheus.Gauge
	DiagnosticLastRun prometheus.Gauge
	ReferencesCleaned prometheus.Counter
	PathsMigrated     prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		DownloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribuna_downloads_total",
			Help: "Object downloads served, by outcome.",
		}, []string{"outcome"}),

		DownloadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_download_bytes_total",
			Help: "Total bytes streamed to clients.",
		}),

		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tribuna_download_duration_seconds",
			Help:    "Time spent streaming one object.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		StreamInterruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_stream_interruptions_total",
			Help: "Downloads aborted after headers were sent.",
		}),

		UploadURLsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribuna_upload_urls_issued_total",
			Help: "Presigned upload URLs issued, by kind.",
		}, []string{"kind"}),

		UploadsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribuna_uploads_finalized_total",
			Help: "Upload finalizations processed, by visibility.",
		}, []string{"visibility"}),

		SigningFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_signing_failures_total",
			Help: "Presigned URL signing failures.",
		}),

		AccessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tribuna_access_decisions_total",
			Help: "ACL access decisions, by result.",
		}, []string{"result"}),

		DiagnosticRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_diagnostic_runs_total",
			Help: "Storage reconciliation scans executed.",
		}),

		DiagnosticIssues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tribuna_diagnostic_issues",
			Help: "Issues found by the most recent reconciliation scan.",
		}),

		DiagnosticLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tribuna_diagnostic_last_run_timestamp_seconds",
			Help: "Unix time of the last completed reconciliation scan.",
		}),

		ReferencesCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_references_cleaned_total",
			Help: "Dangling file references cleared by cleanup runs.",
		}),

		PathsMigrated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tribuna_paths_migrated_total",
			Help: "Legacy file paths rewritten to object storage paths.",
		}),
	}

	registry.MustRegister(
		m.DownloadsTotal,
		m.DownloadBytesTotal,
		m.DownloadDuration,
		m.StreamInterruptions,
		m.UploadURLsIssued,
		m.UploadsFinalized,
		m.SigningFailures,
		m.AccessDecisions,
		m.DiagnosticRuns,
		m.DiagnosticIssues,
		m.DiagnosticLastRun,
		m.ReferencesCleaned,
		m.PathsMigrated,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDownload records one download outcome.
func (m *Metrics) RecordDownload(outcome string, bytes int64, seconds float64) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.DownloadBytesTotal.Add(float64(bytes))
	}
	m.DownloadDuration.Observe(seconds)
}
