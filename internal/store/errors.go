package store

import "errors"

var (
	// ErrNotFoundLocally means the remote call succeeded but the notification
	// is not cached by the store, so no local state was changed.
	ErrNotFoundLocally = errors.New("notification not found in store")

	// ErrInvariantViolation means a counter adjustment would have broken a
	// counter invariant and was clamped.
	ErrInvariantViolation = errors.New("counter invariant violation")

	// ErrInvalidNotification means the caller passed a notification that
	// cannot be acted on, e.g. one without an id.
	ErrInvalidNotification = errors.New("invalid notification")
)
