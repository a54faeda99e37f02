package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.StorageOperations.WithLabelValues("minio", "upload", "ok").Inc()
	m.StorageBytes.WithLabelValues("minio", "upload").Add(42)
	m.CacheRequests.WithLabelValues("hit").Inc()

	if got := testutil.ToFloat64(m.StorageBytes.WithLabelValues("minio", "upload")); got != 42 {
		t.Errorf("Expected 42 bytes, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"dataservice_storage_operations_total",
		"dataservice_storage_bytes_total",
		"dataservice_cache_requests_total",
	} {
		if !names[want] {
			t.Errorf("Expected %s to be registered", want)
		}
	}
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	// Each registry is independent, so building twice must not panic.
	NewNop()
	NewNop()
}
