package display

import "errors"

var (
	// ErrFlush marks a failed frame transfer to the device.
	ErrFlush = errors.New("display: flush failed")
	// ErrNotInitialized is returned by Flush before Init; drawing before
	// Init panics with it.
	ErrNotInitialized = errors.New("display: not initialized")
	// ErrReleased is the panic value for drawing through a released guard.
	ErrReleased = errors.New("display: borrow already released")
)
