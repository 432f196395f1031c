package status

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("rsvp: event not found")
	ErrNotAuthenticated = errors.New("rsvp: not authenticated")
	ErrNotAuthorized    = errors.New("rsvp: not authorized")
	ErrTransientIO      = errors.New("rsvp: transient io failure")
)

// IOError wraps a storage or transport failure so callers can match
// ErrTransientIO while the underlying cause stays in the chain.
func IOError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientIO, op, err)
}
