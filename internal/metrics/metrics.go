// Package metrics provides Prometheus metrics for assetstore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for assetstore
type Metrics struct {
	registry *prometheus.Registry

	// Engine operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Lock metrics
	LockConflictsTotal *prometheus.CounterVec

	// Version tree metrics
	VersionsCreatedTotal prometheus.Counter
	VersionsPurgedTotal  prometheus.Counter
	BytesCopiedTotal     *prometheus.CounterVec
	QuarantinedTotal     prometheus.Counter
}

// NewMetrics creates all metrics on a private registry. A CLI run is short
// lived, so the registry is exported through WriteTextfile rather than served.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith creates all metrics and registers them on reg
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	m := &Metrics{registry: reg}
	factory := promauto.With(reg)

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetstore_operations_total",
			Help: "Total number of versioning operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetstore_operation_duration_seconds",
			Help:    "Duration of versioning operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	m.LockConflictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetstore_lock_conflicts_total",
			Help: "Total number of operations refused because of a held lock",
		},
		[]string{"operation"},
	)

	m.VersionsCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assetstore_versions_created_total",
			Help: "Total number of versions created by checkin",
		},
	)

	m.VersionsPurgedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assetstore_versions_purged_total",
			Help: "Total number of version directories removed",
		},
	)

	m.BytesCopiedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetstore_bytes_copied_total",
			Help: "Total number of bytes copied between version store and workspace",
		},
		[]string{"direction"},
	)

	m.QuarantinedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "assetstore_quarantined_total",
			Help: "Total number of working copies relocated by unlock",
		},
	)

	return m
}

// Registry returns the registry holding these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation records an engine operation with its status
func (m *Metrics) RecordOperation(operation string, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLockConflict counts an operation refused by a held lock
func (m *Metrics) RecordLockConflict(operation string) {
	m.LockConflictsTotal.WithLabelValues(operation).Inc()
}

// RecordCopy counts bytes copied in one direction ("checkout" or "checkin")
func (m *Metrics) RecordCopy(direction string, bytes int64) {
	m.BytesCopiedTotal.WithLabelValues(direction).Add(float64(bytes))
}

// WriteTextfile writes the current values in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
