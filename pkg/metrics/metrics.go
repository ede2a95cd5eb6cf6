// Package metrics provides Prometheus instrumentation for CSTM reads and
// writes.
//
// # Overview
//
// Collectors are registered with the default registry at package init, so
// importing the package is enough to start counting. The writer and reader
// record one block observation per column and one latency observation per
// file-level operation:
//
//	timer := metrics.NewTimer(metrics.OpWrite)
//	err := w.Write(ctx, columns)
//	timer.ObserveDuration()
//
// Operations are labelled with the Op* constants. A CLI run can persist the
// registry with WriteTextfile for the node_exporter textfile collector.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpWrite  = "write"
	OpRead   = "read"
	OpOpen   = "open"
	OpImport = "import"
	OpExport = "export"
)

// Byte kinds for BytesTotal.
const (
	KindCompressed   = "compressed"
	KindUncompressed = "uncompressed"
)

var (
	// BlocksTotal counts column blocks written or read.
	// Labels: operation (write/read)
	BlocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstm_blocks_total",
			Help: "Total number of column blocks processed",
		},
		[]string{"operation"},
	)

	// BytesTotal counts block bytes on either side of the compressor.
	// Labels: operation (write/read), kind (compressed/uncompressed)
	//
	// Example:
	//	metrics.BytesTotal.WithLabelValues(metrics.OpWrite, metrics.KindCompressed).Add(float64(n))
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstm_block_bytes_total",
			Help: "Total block bytes processed",
		},
		[]string{"operation", "kind"},
	)

	// RowsTotal counts rows written or read.
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstm_rows_total",
			Help: "Total number of rows processed",
		},
		[]string{"operation"},
	)

	// ErrorsTotal counts failed operations.
	// Labels: operation, type (cstmerrors error type)
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstm_errors_total",
			Help: "Total number of failed operations",
		},
		[]string{"operation", "type"},
	)

	// OperationLatency tracks the distribution of operation latencies in seconds.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cstm_operation_duration_seconds",
			Help: "Operation latency in seconds",
			Buckets: []float64{
				1e-5, // 10μs - header parse
				1e-4, // 100μs - small block
				1e-3, // 1ms
				1e-2, // 10ms
				1e-1, // 100ms - large block
				1,    // 1s - whole file
				10,   // 10s
			},
		},
		[]string{"operation"},
	)

	// Throughput tracks rows per second of the last measured run.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cstm_throughput_rows_per_second",
			Help: "Rows per second of the last measured run",
		},
		[]string{"operation"},
	)
)

// RecordBlock records one block of the given sizes.
func RecordBlock(operation string, compressed, uncompressed uint64) {
	BlocksTotal.WithLabelValues(operation).Inc()
	BytesTotal.WithLabelValues(operation, KindCompressed).Add(float64(compressed))
	BytesTotal.WithLabelValues(operation, KindUncompressed).Add(float64(uncompressed))
}

// RecordError counts one failure of operation with the given error type.
func RecordError(operation, errType string) {
	ErrorsTotal.WithLabelValues(operation, errType).Inc()
}

// WriteTextfile writes every metric in the default registry to filename in
// the Prometheus text format.
func WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer)
}

// Timer measures the duration of one operation.
type Timer struct {
	start     time.Time
	operation string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		operation: operation,
	}
}

// Stop returns the elapsed duration since creation. It can be called
// repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in OperationLatency and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := t.Stop()
	OperationLatency.WithLabelValues(t.operation).Observe(d.Seconds())
	return d
}

// ThroughputTracker counts rows over a window and reports rows per second.
// Safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	operation string
}

// NewThroughputTracker creates a tracker labelled with operation.
func NewThroughputTracker(operation string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		operation: operation,
	}
}

// Increment adds n to the row count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns rows per second since the last reset, publishes it to
// the Throughput gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.operation).Set(throughput)

	return throughput
}
