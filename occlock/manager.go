package occlock

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fabworks/spooltrace/lockstore"
	"github.com/fabworks/spooltrace/lockval"
	"github.com/fabworks/spooltrace/metrics"
	"github.com/fabworks/spooltrace/occupation"
)

var tracer = otel.Tracer("github.com/fabworks/spooltrace/occlock")

const (
	// DefaultKeyPrefix namespaces lock keys in the lock store.
	DefaultKeyPrefix = "lock:"
	// DefaultSafetyTTL bounds the in-flight window of two-phase
	// acquisition. A crash between the two phases self-heals within it.
	DefaultSafetyTTL = 10 * time.Second
	// DefaultStaleAfter is the age past which a lock with no durable
	// occupation backing it is considered abandoned.
	DefaultStaleAfter = 24 * time.Hour

	// scanBatch bounds how many keys one lazy-cleanup call pulls from the
	// lock store.
	scanBatch = 10
)

// Manager coordinates occupation-lock acquisition, release, lazy cleanup
// and startup reconciliation. All mutual exclusion is delegated to the lock
// store's atomic set-if-absent; the manager itself holds no lock across any
// network call.
type Manager struct {
	locks lockstore.Store
	occ   occupation.Store
	log   logr.Logger

	prefix         string
	safetyTTL      time.Duration
	staleAfter     time.Duration
	guardedRelease bool
	traceEnabled   bool

	// cleanupCursor carries SCAN progress between lazy-cleanup calls so
	// successive calls walk the whole keyspace.
	cleanupCursor atomic.Uint64

	now      func() time.Time
	newToken func() string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithKeyPrefix sets the lock-key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(m *Manager) {
		m.prefix = prefix
	}
}

// WithSafetyTTL sets the expiry of the in-flight acquisition window.
func WithSafetyTTL(d time.Duration) Option {
	return func(m *Manager) {
		m.safetyTTL = d
	}
}

// WithStaleAfter sets the abandonment threshold used by lazy cleanup and
// startup reconciliation.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) {
		m.staleAfter = d
	}
}

// WithGuardedRelease makes Release verify ownership with an atomic
// compare-and-delete instead of deleting unconditionally. Off by default to
// match the historical behavior of the service.
func WithGuardedRelease() Option {
	return func(m *Manager) {
		m.guardedRelease = true
	}
}

// WithTracing enables OpenTelemetry spans around manager operations.
func WithTracing() Option {
	return func(m *Manager) {
		m.traceEnabled = true
	}
}

// New returns a Manager over the given lock store and durable occupation
// store.
func New(locks lockstore.Store, occ occupation.Store, opts ...Option) *Manager {
	m := &Manager{
		locks:      locks,
		occ:        occ,
		log:        stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("occlock"),
		prefix:     DefaultKeyPrefix,
		safetyTTL:  DefaultSafetyTTL,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		newToken:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) key(resourceID string) string {
	return m.prefix + resourceID
}

func (m *Manager) resource(key string) string {
	return strings.TrimPrefix(key, m.prefix)
}

func (m *Manager) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if !m.traceEnabled {
		return ctx, nil
	}
	return tracer.Start(ctx, name)
}

// AcquireResult is the outcome of a successful Acquire.
type AcquireResult struct {
	// Token proves ownership at release time.
	Token string
	// Degraded is true when the lock store was unreachable and no
	// exclusive lock backs the token.
	Degraded bool
}

// Acquire attempts to take the occupation lock for resourceID on behalf of
// ownerID. It returns ErrAlreadyHeld when another owner has the lock and
// ErrLockLost when the two-phase write raced with the safety TTL; in the
// latter case the caller may retry. When the lock store is unreachable a
// degraded token is returned instead of an error.
func (m *Manager) Acquire(ctx context.Context, resourceID, ownerID string) (AcquireResult, error) {
	ctx, span := m.startSpan(ctx, "OccLock.Acquire")
	if span != nil {
		span.SetAttributes(
			attribute.String("spooltrace.resource", resourceID),
			attribute.String("spooltrace.owner", ownerID),
		)
		defer span.End()
	}

	token := m.newToken()
	value, err := lockval.Encode(ownerID, token, m.now())
	if err != nil {
		return AcquireResult{}, err
	}
	key := m.key(resourceID)

	ok, err := m.locks.SetIfAbsent(ctx, key, value, m.safetyTTL)
	if err != nil {
		if errors.Is(err, lockstore.ErrUnavailable) {
			return m.degrade(resourceID, ownerID, err), nil
		}
		return AcquireResult{}, err
	}
	if !ok {
		metrics.ConflictCounter.Inc()
		if span != nil {
			span.SetAttributes(attribute.String("spooltrace.result", "held"))
		}
		return AcquireResult{}, ErrAlreadyHeld
	}

	persisted, err := m.locks.Persist(ctx, key)
	if err != nil {
		if errors.Is(err, lockstore.ErrUnavailable) {
			// The short-TTL record expires on its own; keep the
			// caller moving rather than fail.
			return m.degrade(resourceID, ownerID, err), nil
		}
		_ = m.locks.Delete(ctx, key)
		return AcquireResult{}, err
	}
	if !persisted {
		// The safety TTL fired between the two phases. The key may have
		// been re-taken already, so delete defensively and report the
		// race instead of claiming a persistent lock.
		_ = m.locks.Delete(ctx, key)
		return AcquireResult{}, ErrLockLost
	}

	metrics.AcquireCounter.Inc()
	return AcquireResult{Token: token}, nil
}

// degrade hands out a non-exclusive token while the lock store is down. The
// durable occupation record is then the caller's only conflict check.
func (m *Manager) degrade(resourceID, ownerID string, cause error) AcquireResult {
	metrics.DegradedCounter.Inc()
	m.log.Info("lock store unreachable, degraded acquisition",
		"resource", resourceID, "owner", ownerID, "cause", cause.Error())
	return AcquireResult{Token: degradedToken(ownerID, m.now()), Degraded: true}
}

// Release frees the occupation lock for resourceID. It is idempotent:
// releasing an absent lock, or a degraded token that was never stored,
// succeeds trivially. A lock-store outage is absorbed with a log entry so
// the workflow can finish regardless.
func (m *Manager) Release(ctx context.Context, resourceID, ownerID, token string) error {
	ctx, span := m.startSpan(ctx, "OccLock.Release")
	if span != nil {
		span.SetAttributes(attribute.String("spooltrace.resource", resourceID))
		defer span.End()
	}

	if IsDegraded(token) {
		return nil
	}
	key := m.key(resourceID)

	var err error
	if m.guardedRelease {
		var ok bool
		ok, err = m.locks.CompareAndDelete(ctx, key, ownerID+lockval.Separator+token)
		if err == nil && !ok {
			m.log.Info("release skipped, lock held by another owner",
				"resource", resourceID, "owner", ownerID)
			return nil
		}
	} else {
		err = m.locks.Delete(ctx, key)
	}
	if errors.Is(err, lockstore.ErrUnavailable) {
		m.log.Info("lock store unreachable on release, lock left for cleanup",
			"resource", resourceID, "owner", ownerID)
		return nil
	}
	return err
}

// CleanupOne inspects at most one lock per call for abandonment, bounding
// garbage-collection cost on the hot path. A lock is removed only when it is
// older than the staleness threshold and the durable store shows the
// resource free; the durable record always wins as ground truth. All store
// failures degrade to "try again next opportunity".
func (m *Manager) CleanupOne(ctx context.Context) (bool, error) {
	ctx, span := m.startSpan(ctx, "OccLock.CleanupOne")
	if span != nil {
		defer span.End()
	}

	cursor := m.cleanupCursor.Load()
	keys, next, err := m.locks.ScanPrefix(ctx, m.prefix, cursor, scanBatch)
	if err != nil {
		if errors.Is(err, lockstore.ErrUnavailable) {
			m.log.V(1).Info("cleanup skipped, lock store unreachable")
			return false, nil
		}
		return false, err
	}
	m.cleanupCursor.Store(next)
	if len(keys) == 0 {
		return false, nil
	}
	key := keys[0]

	value, found, err := m.locks.Get(ctx, key)
	if err != nil || !found {
		// Deleted between scan and fetch, or the store went away.
		return false, nil
	}
	payload, err := lockval.Decode(value)
	if err != nil {
		m.log.Info("skipping malformed lock value", "key", key, "error", err.Error())
		return false, nil
	}
	age, known := payload.Age(m.now())
	if !known {
		// Legacy value with unknown age. Never reap what we cannot date.
		return false, nil
	}
	if age <= m.staleAfter {
		return false, nil
	}

	resourceID := m.resource(key)
	rec, found, err := m.occ.Get(ctx, resourceID)
	if err != nil {
		m.log.V(1).Info("cleanup aborted, durable store error",
			"resource", resourceID, "error", err.Error())
		return false, nil
	}
	if found && rec.Occupied() {
		// Stale by lock-store clock but still owned per the durable
		// record. The durable store is the tie-breaker.
		return false, nil
	}

	if err := m.locks.Delete(ctx, key); err != nil {
		m.log.V(1).Info("cleanup delete failed", "key", key, "error", err.Error())
		return false, nil
	}
	metrics.CleanupCounter.Inc()
	m.log.Info("removed abandoned lock",
		"resource", resourceID, "owner", payload.Owner, "age", age.String())
	return true, nil
}
