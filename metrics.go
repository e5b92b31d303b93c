package datasource

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    openCounter     prometheus.Counter
//	    commitHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordOpen(kind datasource.HandleKind, writable bool, d time.Duration, err error) {
//	    p.openCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordOpen is called after each handle open.
	// duration is the total time taken, err is nil if successful.
	RecordOpen(kind HandleKind, writable bool, duration time.Duration, err error)

	// RecordCommit is called after each close-time commit of a writable
	// handle. bytes is the committed content size.
	RecordCommit(bytes int64, duration time.Duration, err error)

	// RecordTransfer is called after each chunked transfer.
	// bytes is the number of bytes copied before success or failure.
	RecordTransfer(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(HandleKind, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(int64, time.Duration, error)          {}
func (NoopMetricsCollector) RecordTransfer(int64, time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount          atomic.Int64
	OpenWritable       atomic.Int64
	OpenErrors         atomic.Int64
	CommitCount        atomic.Int64
	CommitErrors       atomic.Int64
	CommitBytes        atomic.Int64
	CommitTotalNanos   atomic.Int64
	TransferCount      atomic.Int64
	TransferErrors     atomic.Int64
	TransferBytes      atomic.Int64
	TransferTotalNanos atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(kind HandleKind, writable bool, duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if writable {
		b.OpenWritable.Add(1)
	}
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(bytes int64, duration time.Duration, err error) {
	b.CommitCount.Add(1)
	b.CommitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.CommitBytes.Add(bytes)
}

// RecordTransfer implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransfer(bytes int64, duration time.Duration, err error) {
	b.TransferCount.Add(1)
	b.TransferTotalNanos.Add(duration.Nanoseconds())
	b.TransferBytes.Add(bytes)
	if err != nil {
		b.TransferErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:        b.OpenCount.Load(),
		OpenWritable:     b.OpenWritable.Load(),
		OpenErrors:       b.OpenErrors.Load(),
		CommitCount:      b.CommitCount.Load(),
		CommitErrors:     b.CommitErrors.Load(),
		CommitBytes:      b.CommitBytes.Load(),
		CommitAvgNanos:   avgNanos(&b.CommitTotalNanos, &b.CommitCount),
		TransferCount:    b.TransferCount.Load(),
		TransferErrors:   b.TransferErrors.Load(),
		TransferBytes:    b.TransferBytes.Load(),
		TransferAvgNanos: avgNanos(&b.TransferTotalNanos, &b.TransferCount),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount        int64
	OpenWritable     int64
	OpenErrors       int64
	CommitCount      int64
	CommitErrors     int64
	CommitBytes      int64
	CommitAvgNanos   int64
	TransferCount    int64
	TransferErrors   int64
	TransferBytes    int64
	TransferAvgNanos int64
}
