package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal tracks total number of downloads by status and audio format
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytshelf_downloads_total",
			Help: "Total number of downloads",
		},
		[]string{"status", "format"},
	)

	// DownloadDuration tracks download duration in seconds by audio format
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytshelf_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"format"},
	)

	// RetriesTotal tracks download attempts beyond the first
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytshelf_retries_total",
			Help: "Total number of download retries",
		},
	)

	// RelocationsTotal tracks files moved between albums during reconciliation
	RelocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytshelf_relocations_total",
			Help: "Total number of library file relocations",
		},
	)

	// EntriesProcessedTotal tracks reconciled entries by pass
	EntriesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytshelf_entries_processed_total",
			Help: "Total number of source entries processed",
		},
		[]string{"pass"},
	)

	// RunsTotal tracks reconciliation runs by outcome and trigger
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytshelf_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"status", "trigger"},
	)

	// RunDuration tracks full run duration in seconds
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ytshelf_run_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
	)

	// LedgerRecords tracks the number of records in the download ledger
	LedgerRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytshelf_ledger_records",
			Help: "Number of records in the download ledger",
		},
	)

	// ActiveDownloads tracks number of in-flight downloads
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytshelf_active_downloads",
			Help: "Number of active downloads",
		},
	)

	// ActiveRun indicates whether a reconciliation run is in progress
	ActiveRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ytshelf_active_run",
			Help: "1 while a reconciliation run is in progress",
		},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytshelf_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordDownloadStart records the start of a download
func RecordDownloadStart(format string) {
	ActiveDownloads.Inc()
}

// RecordDownloadComplete records a completed download
func RecordDownloadComplete(format string, duration time.Duration) {
	DownloadsTotal.WithLabelValues("completed", format).Inc()
	DownloadDuration.WithLabelValues(format).Observe(duration.Seconds())
	ActiveDownloads.Dec()
}

// RecordDownloadFailed records a failed download
func RecordDownloadFailed(format string, errorType string) {
	DownloadsTotal.WithLabelValues("failed", format).Inc()
	ErrorsTotal.WithLabelValues(errorType).Inc()
	ActiveDownloads.Dec()
}

// RecordRetry records a download attempt after the first
func RecordRetry() {
	RetriesTotal.Inc()
}

// RecordRelocation records a file moved to a different album folder
func RecordRelocation() {
	RelocationsTotal.Inc()
}

// RecordEntryProcessed records a reconciled entry for the given pass
func RecordEntryProcessed(pass string) {
	EntriesProcessedTotal.WithLabelValues(pass).Inc()
}

// RecordRunStart marks a reconciliation run as active
func RecordRunStart() {
	ActiveRun.Set(1)
}

// RecordRunComplete records a finished reconciliation run
func RecordRunComplete(status string, trigger string, duration time.Duration) {
	RunsTotal.WithLabelValues(status, trigger).Inc()
	RunDuration.Observe(duration.Seconds())
	ActiveRun.Set(0)
}

// UpdateLedgerRecords updates the ledger size metric
func UpdateLedgerRecords(count int) {
	LedgerRecords.Set(float64(count))
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}
