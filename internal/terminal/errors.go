package terminal

import "errors"

// Domain errors for the terminal package.
var (
	// ErrNotConnected is returned when an operation requires an active
	// device session but none exists.
	ErrNotConnected = errors.New("terminal: not connected to device")

	// ErrUnknownOperation is returned by Invoke for an operation name the
	// link does not recognise.
	ErrUnknownOperation = errors.New("terminal: unknown operation")

	// ErrInvalidArgument is returned when Invoke arguments do not match
	// the operation's expected types.
	ErrInvalidArgument = errors.New("terminal: invalid operation argument")

	// ErrTemplateSize is returned when a fingerprint template's byte
	// length is outside the accepted range.
	ErrTemplateSize = errors.New("terminal: template size out of range")

	// ErrUserNotFound is returned when a user lookup by external
	// identifier finds nothing on the device.
	ErrUserNotFound = errors.New("terminal: user not found on device")

	// ErrDriverNotFound is returned when no driver is registered under
	// the configured name.
	ErrDriverNotFound = errors.New("terminal: driver not registered")
)
