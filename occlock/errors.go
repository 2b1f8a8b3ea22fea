package occlock

import "errors"

var (
	// ErrAlreadyHeld is returned by Acquire when another owner holds the
	// resource. It is the only error meant to surface to end users.
	ErrAlreadyHeld = errors.New("occlock: resource already held")

	// ErrLockLost is returned by Acquire when the safety TTL fired before
	// the lock could be made persistent. Callers may retry from scratch.
	ErrLockLost = errors.New("occlock: lock lost during acquisition")
)
