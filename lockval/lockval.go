// Package lockval encodes and decodes the occupation-lock payload stored as
// a plain string in the lock store. Two wire formats exist: the current
// three-field "owner:token:unix" form and a legacy two-field "owner:token"
// form written by older releases, which carries no acquisition time.
package lockval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Separator delimits the fields of an encoded lock value.
const Separator = ":"

var (
	// ErrMalformed is returned when a value matches neither known format.
	ErrMalformed = errors.New("lockval: malformed lock value")
	// ErrBadField is returned by Encode when a field is empty or contains
	// the separator.
	ErrBadField = errors.New("lockval: field empty or contains separator")
)

// Payload is a decoded lock value.
type Payload struct {
	Owner string
	Token string
	// AcquiredAt is the zero time when Legacy is true. Age checks must
	// treat it as unknown, never as "very old".
	AcquiredAt time.Time
	// Legacy marks the two-field format.
	Legacy bool
}

// Age returns the time elapsed since acquisition relative to now. The second
// return is false when the payload is legacy and its age is unknown.
func (p Payload) Age(now time.Time) (time.Duration, bool) {
	if p.Legacy {
		return 0, false
	}
	return now.Sub(p.AcquiredAt), true
}

// Encode serializes owner, token and the acquisition time into the current
// three-field format. Owner and token must be non-empty and must not contain
// the separator.
func Encode(owner, token string, acquiredAt time.Time) (string, error) {
	for _, f := range []string{owner, token} {
		if f == "" || strings.Contains(f, Separator) {
			return "", fmt.Errorf("%w: %q", ErrBadField, f)
		}
	}
	return owner + Separator + token + Separator + strconv.FormatInt(acquiredAt.Unix(), 10), nil
}

// Decode parses an encoded lock value. Two-field values decode as legacy
// payloads with an unknown acquisition time; anything else that is not a
// valid three-field value is ErrMalformed.
func Decode(value string) (Payload, error) {
	parts := strings.Split(value, Separator)
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, value)
		}
		return Payload{Owner: parts[0], Token: parts[1], Legacy: true}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" {
			return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, value)
		}
		sec, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: bad timestamp in %q", ErrMalformed, value)
		}
		return Payload{Owner: parts[0], Token: parts[1], AcquiredAt: time.Unix(sec, 0)}, nil
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
}
