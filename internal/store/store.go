// Package store persists the pending-action collection shared by
// concurrent webhook deliveries.
package store

import "errors"

// Failure classes surfaced by stores. Callers degrade gracefully on all
// of them: correlation is best-effort and never blocks the action itself.
var (
	// ErrUnavailable means the backing storage could not be read or written.
	ErrUnavailable = errors.New("store unavailable")

	// ErrCorrupt means the persisted representation could not be parsed.
	// The corrupt file is preserved on disk for diagnosis.
	ErrCorrupt = errors.New("store corrupt")

	// ErrBusy means the advisory lock was not acquired within the timeout.
	ErrBusy = errors.New("store busy")
)
