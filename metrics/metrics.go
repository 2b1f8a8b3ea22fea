// Package metrics exposes the Prometheus collectors for the occupation-lock
// subsystem.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks confirmed (non-degraded) lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_lock_acquire_total",
		Help: "Total number of confirmed occupation-lock acquisitions",
	})
	// ConflictCounter tracks acquisitions rejected because the resource
	// was already held.
	ConflictCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_lock_conflict_total",
		Help: "Total number of acquisitions rejected as already held",
	})
	// DegradedCounter tracks acquisitions that fell back to degraded mode.
	// A non-zero rate means locking guarantees are currently weakened.
	DegradedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_lock_degraded_total",
		Help: "Total number of degraded-mode fallbacks while the lock store was unreachable",
	})
	// CleanupCounter tracks abandoned locks removed by lazy cleanup.
	CleanupCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_lock_cleanup_total",
		Help: "Total number of abandoned locks removed",
	})
	// ReconcileRecreatedCounter tracks locks rebuilt at startup.
	ReconcileRecreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_reconcile_recreated_total",
		Help: "Total number of locks recreated by startup reconciliation",
	})
	// ReconcileFailedCounter tracks records reconciliation could not process.
	ReconcileFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spooltrace_reconcile_failed_total",
		Help: "Total number of records startup reconciliation failed to process",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the spooltrace collectors on the provided
// registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		AcquireCounter,
		ConflictCounter,
		DegradedCounter,
		CleanupCounter,
		ReconcileRecreatedCounter,
		ReconcileFailedCounter,
	)
}
