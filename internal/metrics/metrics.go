// Package metrics provides Prometheus metrics for the storage core
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for storagecored
type Metrics struct {
	// admin gRPC metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// disk manager metrics
	DiskReadsTotal      prometheus.Counter
	DiskWritesTotal     prometheus.Counter
	DiskOperationErrors *prometheus.CounterVec
	PagesAllocatedTotal prometheus.Gauge
	DbSizeBytes         prometheus.Gauge

	// buffer pool metrics
	BufferPoolHitsTotal    prometheus.Counter
	BufferPoolMissesTotal  prometheus.Counter
	BufferPoolEvictions    prometheus.Counter
	BufferPoolPinnedFrames prometheus.Gauge

	// B+ tree / heap metrics
	IndexLookupsTotal   prometheus.Counter
	IndexSplitsTotal     prometheus.Counter
	IndexCoalescesTotal  prometheus.Counter
	HeapTuplesTotal      prometheus.Gauge

	// server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecore_admin_requests_total",
			Help: "Total number of admin gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storagecore_admin_request_duration_seconds",
			Help:    "Duration of admin gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_admin_requests_in_flight",
			Help: "Number of admin gRPC requests currently being processed",
		},
	)

	m.DiskReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_disk_reads_total",
			Help: "Total number of physical page reads",
		},
	)

	m.DiskWritesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_disk_writes_total",
			Help: "Total number of physical page writes",
		},
	)

	m.DiskOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storagecore_disk_operation_errors_total",
			Help: "Total number of failed disk operations by kind",
		},
		[]string{"operation"},
	)

	m.PagesAllocatedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_pages_allocated_total",
			Help: "Number of logical pages currently allocated",
		},
	)

	m.DbSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_db_size_bytes",
			Help: "Current database file size in bytes",
		},
	)

	m.BufferPoolHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_buffer_pool_hits_total",
			Help: "Total number of buffer pool fetches served from cache",
		},
	)

	m.BufferPoolMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_buffer_pool_misses_total",
			Help: "Total number of buffer pool fetches that required a disk read",
		},
	)

	m.BufferPoolEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_buffer_pool_evictions_total",
			Help: "Total number of frames evicted by the replacer",
		},
	)

	m.BufferPoolPinnedFrames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_buffer_pool_pinned_frames",
			Help: "Number of frames currently pinned",
		},
	)

	m.IndexLookupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_index_lookups_total",
			Help: "Total number of B+ tree point lookups",
		},
	)

	m.IndexSplitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_index_splits_total",
			Help: "Total number of B+ tree node splits",
		},
	)

	m.IndexCoalescesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storagecore_index_coalesces_total",
			Help: "Total number of B+ tree node coalesce/redistribute events",
		},
	)

	m.HeapTuplesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_heap_tuples_total",
			Help: "Total number of live tuples across all table heaps",
		},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storagecore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordGrpcRequest records an admin gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// UpdateStorageStats updates disk and buffer pool gauges
func (m *Metrics) UpdateStorageStats(sizeBytes int64, pagesAllocated int64, pinnedFrames int64) {
	m.DbSizeBytes.Set(float64(sizeBytes))
	m.PagesAllocatedTotal.Set(float64(pagesAllocated))
	m.BufferPoolPinnedFrames.Set(float64(pinnedFrames))
}
