package occlock

import (
	"context"
	"fmt"
	"time"

	"github.com/fabworks/spooltrace/lockval"
	"github.com/fabworks/spooltrace/metrics"
)

// DefaultReconcileTimeout bounds the startup reconciliation pass.
const DefaultReconcileTimeout = 10 * time.Second

// Report summarizes one reconciliation pass.
type Report struct {
	// Recreated counts locks rebuilt from durable occupation records.
	Recreated int
	// SkippedExisting counts records whose lock already existed.
	SkippedExisting int
	// SkippedStale counts records older than the staleness threshold,
	// left for operational cleanup.
	SkippedStale int
	// Failed counts records that could not be processed.
	Failed int
}

// Reconcile rebuilds missing lock records from the durable occupation
// records after a restart, so in-progress work is not treated as available.
// It is best-effort by design: the whole pass runs under the given timeout
// (DefaultReconcileTimeout when non-positive), individual record failures
// are counted and skipped, and every failure mode leaves the process free
// to start serving. Work not reconciled here is eventually discovered by
// lazy cleanup and normal operation.
func (m *Manager) Reconcile(ctx context.Context, timeout time.Duration) Report {
	if timeout <= 0 {
		timeout = DefaultReconcileTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := m.startSpan(ctx, "OccLock.Reconcile")
	if span != nil {
		defer span.End()
	}

	var rep Report
	records, err := m.occ.ListOccupied(ctx)
	if err != nil {
		m.log.Error(err, "reconcile aborted, durable store scan failed")
		return rep
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			m.log.Info("reconcile deadline reached, remaining locks left to lazy discovery",
				"processed", i, "remaining", len(records)-i)
			break
		}
		// A zero OccupiedAt cannot be dated, and a record past the
		// threshold is abandoned data; neither is worth a lock.
		if rec.OccupiedAt.IsZero() || m.now().Sub(rec.OccupiedAt) > m.staleAfter {
			rep.SkippedStale++
			continue
		}

		exists, err := m.locks.Exists(ctx, m.key(rec.ResourceID))
		if err != nil {
			rep.Failed++
			metrics.ReconcileFailedCounter.Inc()
			m.log.V(1).Info("reconcile existence check failed",
				"resource", rec.ResourceID, "error", err.Error())
			continue
		}
		if exists {
			// An active acquisition or a legitimately recreated lock.
			// Never clobber it.
			rep.SkippedExisting++
			continue
		}

		created, err := m.rebuild(ctx, rec.ResourceID, rec.Owner, rec.OccupiedAt)
		if err != nil {
			rep.Failed++
			metrics.ReconcileFailedCounter.Inc()
			m.log.V(1).Info("reconcile rebuild failed",
				"resource", rec.ResourceID, "error", err.Error())
			continue
		}
		if !created {
			rep.SkippedExisting++
			continue
		}
		rep.Recreated++
		metrics.ReconcileRecreatedCounter.Inc()
	}

	m.log.Info("reconcile finished",
		"recreated", rep.Recreated,
		"skipped_existing", rep.SkippedExisting,
		"skipped_stale", rep.SkippedStale,
		"failed", rep.Failed)
	return rep
}

// rebuild recreates a lock with the same two-phase write Acquire uses,
// carrying the durable occupation time so the rebuilt lock keeps its true
// age for staleness checks. A fresh token is generated; the original one
// died with the lock store. Returns false when another writer got there
// first.
func (m *Manager) rebuild(ctx context.Context, resourceID, ownerID string, occupiedAt time.Time) (bool, error) {
	value, err := lockval.Encode(ownerID, m.newToken(), occupiedAt)
	if err != nil {
		return false, err
	}
	key := m.key(resourceID)

	ok, err := m.locks.SetIfAbsent(ctx, key, value, m.safetyTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	persisted, err := m.locks.Persist(ctx, key)
	if err != nil {
		_ = m.locks.Delete(ctx, key)
		return false, err
	}
	if !persisted {
		_ = m.locks.Delete(ctx, key)
		return false, fmt.Errorf("%w: %s", ErrLockLost, resourceID)
	}
	return true, nil
}
