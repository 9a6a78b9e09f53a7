package store

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics are process-local; each Store gets its own unregistered
// registry so opening multiple stores in tests never collides on
// prometheus's default registry.
type storeMetrics struct {
	registry       *prometheus.Registry
	batchesApplied prometheus.Counter
	opsApplied     prometheus.Counter
	snapshotsTaken prometheus.Counter
}

func newStoreMetrics() *storeMetrics {
	reg := prometheus.NewRegistry()
	m := &storeMetrics{
		registry: reg,
		batchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statecore_store_batches_applied_total",
			Help: "Number of batches applied directly against the store.",
		}),
		opsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statecore_store_ops_applied_total",
			Help: "Number of individual operations applied across all batches.",
		}),
		snapshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statecore_store_snapshots_total",
			Help: "Number of snapshots written to disk.",
		}),
	}
	reg.MustRegister(m.batchesApplied, m.opsApplied, m.snapshotsTaken)
	return m
}

// Registry exposes the store's private metrics registry so cmd/statecore
// can fold it into a process-wide /metrics handler.
func (s *Store) Registry() *prometheus.Registry {
	return s.metrics.registry
}
