package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the data service.
type Metrics struct {
	StorageOperations *prometheus.CounterVec
	StorageDuration   *prometheus.HistogramVec
	StorageBytes      *prometheus.CounterVec
	CacheRequests     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StorageOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataservice",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of storage SDK operations by backend, operation and status.",
		}, []string{"backend", "operation", "status"}), // status: ok, not_found, conflict, error
		StorageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dataservice",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Latency of storage SDK operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StorageBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataservice",
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Total number of bytes moved to or from storage.",
		}, []string{"backend", "direction"}), // direction: upload, download
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataservice",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Download cache lookups by result.",
		}, []string{"result"}), // result: hit, miss, error
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataservice",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dataservice",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNop returns collectors registered on a throwaway registry, for tests and CLI commands.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
