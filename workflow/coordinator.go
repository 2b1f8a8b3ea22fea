// Package workflow glues the occupation-lock manager to work sessions: it
// is the layer the assembly and welding handlers call when a worker starts
// or finishes a job on a spool or union.
package workflow

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/fabworks/spooltrace/occlock"
	"github.com/fabworks/spooltrace/occupation"
)

const cleanupTimeout = 5 * time.Second

// Session is a live work session on one resource.
type Session struct {
	ResourceID string
	WorkerID   string
	Token      string
	// Degraded is true when no exclusive lock backs this session.
	Degraded bool
}

// Coordinator wires lock acquisition and durable occupation bookkeeping
// together for the workflow handlers.
type Coordinator struct {
	locks *occlock.Manager
	occ   occupation.Writer
	log   logr.Logger
	now   func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = l
	}
}

// NewCoordinator returns a Coordinator over the given lock manager and
// durable occupation store.
func NewCoordinator(locks *occlock.Manager, occ occupation.Writer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		locks: locks,
		occ:   occ,
		log:   stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("workflow"),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartWork acquires the occupation lock for resourceID on behalf of
// workerID and marks the durable record. A lost-lock race is retried once;
// ErrAlreadyHeld passes through to the handler, which maps it to "someone
// else is working on this". Each call also triggers one opportunistic
// cleanup of an abandoned lock in the background.
func (c *Coordinator) StartWork(ctx context.Context, resourceID, workerID string) (Session, error) {
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if _, err := c.locks.CleanupOne(cctx); err != nil {
			c.log.V(1).Info("opportunistic cleanup failed", "error", err.Error())
		}
	}()

	var res occlock.AcquireResult
	err := retry.Do(
		func() error {
			r, err := c.locks.Acquire(ctx, resourceID, workerID)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, occlock.ErrLockLost)
		}),
		retry.Attempts(2),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return Session{}, err
	}

	if res.Degraded {
		// No exclusive lock backs this token; the durable occupation
		// field is the only conflict check left.
		rec, found, err := c.occ.Get(ctx, resourceID)
		if err == nil && found && rec.Occupied() && rec.Owner != workerID {
			return Session{}, occlock.ErrAlreadyHeld
		}
	}

	if err := c.occ.SetOccupied(ctx, resourceID, workerID, c.now()); err != nil {
		// Roll the lock back so the resource is not wedged behind a
		// half-started session.
		_ = c.locks.Release(ctx, resourceID, workerID, res.Token)
		return Session{}, err
	}
	return Session{
		ResourceID: resourceID,
		WorkerID:   workerID,
		Token:      res.Token,
		Degraded:   res.Degraded,
	}, nil
}

// EndWork clears the durable occupation record and releases the lock. It is
// idempotent; ending an already-ended session succeeds.
func (c *Coordinator) EndWork(ctx context.Context, s Session) error {
	if err := c.occ.Clear(ctx, s.ResourceID); err != nil {
		return err
	}
	return c.locks.Release(ctx, s.ResourceID, s.WorkerID, s.Token)
}
