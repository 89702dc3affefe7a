// Package metrics provides Prometheus metrics for the stream importer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the stream importer.
type Metrics struct {
	// File metrics
	FilesProcessed *prometheus.CounterVec
	FilesSkipped   *prometheus.CounterVec
	FilesFailed    *prometheus.CounterVec
	LastFileIndex  *prometheus.GaugeVec
	LastConsensus  *prometheus.GaugeVec

	// Item metrics
	ItemsProcessed    *prometheus.CounterVec
	UnresolvedParents *prometheus.CounterVec
	ErrataApplied     *prometheus.CounterVec
	GasUsed           *prometheus.CounterVec

	// Timing metrics
	FileBuildDuration  *prometheus.HistogramVec
	FileCommitDuration *prometheus.HistogramVec

	// Size metrics
	FileItems *prometheus.HistogramVec
	FileBytes *prometheus.HistogramVec

	// Pipeline metrics
	WorkerQueueDepth prometheus.Gauge
	SequencerPending prometheus.Gauge
	InFlightFiles    prometheus.Gauge

	// Error metrics
	SourceErrors  *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	CatalogErrors *prometheus.CounterVec
	RetryAttempts *prometheus.CounterVec

	// Throughput
	FilesPerSecond prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init registers the global metrics with the default registry.
// Call this once at startup.
func Init(namespace string) *Metrics {
	defaultMetrics = New(namespace, prometheus.DefaultRegisterer)
	return defaultMetrics
}

// SetDefault replaces the global metrics returned by Get. nil disables them.
func SetDefault(m *Metrics) {
	defaultMetrics = m
}

// New creates a metrics set registered with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "stream_importer"
	}
	factory := promauto.With(reg)
	fileLabels := []string{"network", "format"}

	return &Metrics{
		FilesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_processed_total",
				Help:      "Total number of stream files accepted",
			},
			fileLabels,
		),
		FilesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_skipped_total",
				Help:      "Total number of stream files skipped (already cataloged)",
			},
			fileLabels,
		),
		FilesFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_failed_total",
				Help:      "Total number of stream files rejected, by failing check",
			},
			[]string{"network", "format", "check"},
		),
		LastFileIndex: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_file_index",
				Help:      "Index of the last accepted stream file",
			},
			fileLabels,
		),
		LastConsensus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_consensus_timestamp_seconds",
				Help:      "Consensus end of the last accepted stream file",
			},
			fileLabels,
		),
		ItemsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_processed_total",
				Help:      "Total number of record items rebuilt",
			},
			fileLabels,
		),
		UnresolvedParents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unresolved_parents_total",
				Help:      "Record items whose declared parent could not be linked",
			},
			[]string{"network"},
		),
		ErrataApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errata_applied_total",
				Help:      "Record items corrected by an errata entry",
			},
			[]string{"network"},
		),
		GasUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gas_used_total",
				Help:      "Contract gas reported by accepted record items",
			},
			[]string{"network"},
		),
		FileBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_build_duration_seconds",
				Help:      "Time to decode a stream file and rebuild its items",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			fileLabels,
		),
		FileCommitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_commit_duration_seconds",
				Help:      "Time to validate and persist an accepted stream file",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			fileLabels,
		),
		FileItems: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_items",
				Help:      "Number of record items per stream file",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1 to ~8k
			},
			fileLabels,
		),
		FileBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_bytes",
				Help:      "Uncompressed size of stream files in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
			fileLabels,
		),
		WorkerQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current number of files in the worker queue",
			},
		),
		SequencerPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequencer_pending",
				Help:      "Number of built files waiting for their predecessors",
			},
		),
		InFlightFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_files",
				Help:      "Number of files currently being built",
			},
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of source read errors",
			},
			[]string{"network", "source_type"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of archive write errors",
			},
			[]string{"network", "backend"},
		),
		CatalogErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of catalog errors",
			},
			[]string{"network"},
		),
		RetryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"network", "operation"},
		),
		FilesPerSecond: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "files_per_second",
				Help:      "Current stream file processing rate",
			},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// Labels is a convenience type for metric labels.
type Labels struct {
	Network    string
	Format     string
	Check      string
	SourceType string
	Backend    string
	Operation  string
}

// IncFilesProcessed increments the files processed counter.
func (m *Metrics) IncFilesProcessed(l Labels) {
	m.FilesProcessed.WithLabelValues(l.Network, l.Format).Inc()
}

// IncFilesSkipped increments the files skipped counter.
func (m *Metrics) IncFilesSkipped(l Labels) {
	m.FilesSkipped.WithLabelValues(l.Network, l.Format).Inc()
}

// IncFilesFailed increments the files failed counter.
func (m *Metrics) IncFilesFailed(l Labels) {
	m.FilesFailed.WithLabelValues(l.Network, l.Format, l.Check).Inc()
}

// SetLastFile records the position of the last accepted file.
func (m *Metrics) SetLastFile(l Labels, index uint64, consensusEnd int64) {
	m.LastFileIndex.WithLabelValues(l.Network, l.Format).Set(float64(index))
	m.LastConsensus.WithLabelValues(l.Network, l.Format).Set(float64(consensusEnd) / 1e9)
}

// AddItemsProcessed adds to the items processed counter.
func (m *Metrics) AddItemsProcessed(l Labels, count float64) {
	m.ItemsProcessed.WithLabelValues(l.Network, l.Format).Add(count)
}

// AddUnresolvedParents adds to the unresolved parent counter.
func (m *Metrics) AddUnresolvedParents(l Labels, count float64) {
	m.UnresolvedParents.WithLabelValues(l.Network).Add(count)
}

// AddErrataApplied adds to the errata counter.
func (m *Metrics) AddErrataApplied(l Labels, count float64) {
	m.ErrataApplied.WithLabelValues(l.Network).Add(count)
}

// AddGasUsed adds to the gas counter.
func (m *Metrics) AddGasUsed(l Labels, gas float64) {
	m.GasUsed.WithLabelValues(l.Network).Add(gas)
}

// ObserveFileBuildDuration records the file build time.
func (m *Metrics) ObserveFileBuildDuration(l Labels, seconds float64) {
	m.FileBuildDuration.WithLabelValues(l.Network, l.Format).Observe(seconds)
}

// ObserveFileCommitDuration records the file commit time.
func (m *Metrics) ObserveFileCommitDuration(l Labels, seconds float64) {
	m.FileCommitDuration.WithLabelValues(l.Network, l.Format).Observe(seconds)
}

// ObserveFileItems records the number of items in a file.
func (m *Metrics) ObserveFileItems(l Labels, items float64) {
	m.FileItems.WithLabelValues(l.Network, l.Format).Observe(items)
}

// ObserveFileBytes records the size of a file in bytes.
func (m *Metrics) ObserveFileBytes(l Labels, bytes float64) {
	m.FileBytes.WithLabelValues(l.Network, l.Format).Observe(bytes)
}

// SetWorkerQueueDepth sets the current worker queue depth.
func (m *Metrics) SetWorkerQueueDepth(depth float64) {
	m.WorkerQueueDepth.Set(depth)
}

// SetSequencerPending sets the number of files waiting in the sequencer.
func (m *Metrics) SetSequencerPending(pending float64) {
	m.SequencerPending.Set(pending)
}

// SetInFlightFiles sets the number of in-flight files.
func (m *Metrics) SetInFlightFiles(count float64) {
	m.InFlightFiles.Set(count)
}

// IncSourceErrors increments the source errors counter.
func (m *Metrics) IncSourceErrors(l Labels) {
	m.SourceErrors.WithLabelValues(l.Network, l.SourceType).Inc()
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(l Labels) {
	m.StorageErrors.WithLabelValues(l.Network, l.Backend).Inc()
}

// IncCatalogErrors increments the catalog errors counter.
func (m *Metrics) IncCatalogErrors(l Labels) {
	m.CatalogErrors.WithLabelValues(l.Network).Inc()
}

// IncRetryAttempts increments the retry attempts counter.
func (m *Metrics) IncRetryAttempts(l Labels) {
	m.RetryAttempts.WithLabelValues(l.Network, l.Operation).Inc()
}

// SetFilesPerSecond sets the current processing rate.
func (m *Metrics) SetFilesPerSecond(rate float64) {
	m.FilesPerSecond.Set(rate)
}
