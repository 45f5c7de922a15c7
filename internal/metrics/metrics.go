// Package metrics collects the counters of one load run on a private
// Prometheus registry. A batch job has no scrape endpoint, so the
// registry is written once at the end of the run in the text format
// read by node-exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name
const Namespace = "pwcdb"

// Metrics holds the metrics of one run
type Metrics struct {
	registry *prometheus.Registry

	// RecordsRead counts source records read, by source
	RecordsRead *prometheus.CounterVec

	// RecordsRejected counts records the normalizer rejected, by source and reason
	RecordsRejected *prometheus.CounterVec

	// RecordsDuplicate counts records whose natural key was already claimed this run
	RecordsDuplicate *prometheus.CounterVec

	// RowsWritten counts rows in committed batches, by table
	RowsWritten *prometheus.CounterVec

	// RowsInserted counts rows that were new to the store, by table
	RowsInserted *prometheus.CounterVec

	// RowsFailed counts rows in rolled back batches, by table
	RowsFailed *prometheus.CounterVec

	// BatchDuration observes batch transaction time in seconds, by table
	BatchDuration *prometheus.HistogramVec

	// TableRows is the final row count of each table
	TableRows *prometheus.GaugeVec

	// RunDuration is the wall time of the run in seconds
	RunDuration prometheus.Gauge

	// LastCompletion is the unix time the run finished successfully
	LastCompletion prometheus.Gauge
}

// New creates the metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RecordsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_read_total",
			Help:      "Source records read",
		}, []string{"source"}),
		RecordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_rejected_total",
			Help:      "Source records rejected by the normalizer",
		}, []string{"source", "reason"}),
		RecordsDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "records_duplicate_total",
			Help:      "Source records skipped because their key was already loaded this run",
		}, []string{"source"}),
		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_written_total",
			Help:      "Rows in committed batches",
		}, []string{"table"}),
		RowsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows not already present in the store",
		}, []string{"table"}),
		RowsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_failed_total",
			Help:      "Rows in rolled back batches",
		}, []string{"table"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch transaction duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"table"}),
		TableRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "table_rows",
			Help:      "Row count per table after the run",
		}, []string{"table"}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		LastCompletion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_completion_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBatch records one writer batch
func (m *Metrics) ObserveBatch(table string, rows int, inserted int64, elapsed time.Duration, failed bool) {
	m.BatchDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	if failed {
		m.RowsFailed.WithLabelValues(table).Add(float64(rows))
		return
	}
	m.RowsWritten.WithLabelValues(table).Add(float64(rows))
	m.RowsInserted.WithLabelValues(table).Add(float64(inserted))
}

// RecordRead counts one record read from source
func (m *Metrics) RecordRead(source string) {
	m.RecordsRead.WithLabelValues(source).Inc()
}

// RecordRejected counts one rejected record
func (m *Metrics) RecordRejected(source, reason string) {
	m.RecordsRejected.WithLabelValues(source, reason).Inc()
}

// RecordDuplicate counts one duplicate record
func (m *Metrics) RecordDuplicate(source string) {
	m.RecordsDuplicate.WithLabelValues(source).Inc()
}

// SetTableRows records the final row count of a table
func (m *Metrics) SetTableRows(table string, rows int64) {
	m.TableRows.WithLabelValues(table).Set(float64(rows))
}

// Finish records the run duration, and the completion time when the run
// succeeded.
func (m *Metrics) Finish(d time.Duration, completed bool, at time.Time) {
	m.RunDuration.Set(d.Seconds())
	if completed {
		m.LastCompletion.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry to path atomically
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
