package domain

import "errors"

var (
	// ErrNotFound is returned when a message, channel or user no longer exists
	// on the remote side.
	ErrNotFound = errors.New("requested item was not found")
	// ErrConflict is returned when an announcement record would reuse a
	// broadcast or message id that is already tracked.
	ErrConflict = errors.New("announcement already tracked")
	// ErrProviderUnavailable wraps any failure to fetch the live broadcast list.
	ErrProviderUnavailable = errors.New("live-status provider unavailable")
	// ErrBusy is returned when another process is running a pass for the same
	// channel.
	ErrBusy = errors.New("another pass holds the channel lock")
)
