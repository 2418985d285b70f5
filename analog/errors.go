package analog

import "github.com/pkg/errors"

var (
	// ErrTransport wraps a failed register read or write.
	ErrTransport = errors.New("register transport failed")

	// ErrInvalidChannel is returned for indices outside the module.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrFunctionMismatch is returned when the channel's function does not
	// support the requested operation.
	ErrFunctionMismatch = errors.New("channel function mismatch")

	// ErrGateBlocked is returned when a function change is attempted while
	// the channel's function write gate is closed.
	ErrGateBlocked = errors.New("function write gate closed")

	// ErrStale marks acquired values that could not be refreshed. The
	// previous value is kept.
	ErrStale = errors.New("value not refreshed")
)
