package flow

import "errors"

var (
	// ErrConfiguration is returned by NewTable for an unusable bucket count.
	ErrConfiguration = errors.New("flow: invalid table configuration")

	// ErrDuplicate is returned by Insert when the key is already tracked.
	ErrDuplicate = errors.New("flow: entry already exists")

	// ErrNotFound is returned by Find and Remove on a miss.
	ErrNotFound = errors.New("flow: entry not found")

	// ErrTableFull is returned by Insert when the entry cap is reached.
	ErrTableFull = errors.New("flow: table full")

	// ErrClosed is returned by every operation after Teardown.
	ErrClosed = errors.New("flow: table closed")
)
