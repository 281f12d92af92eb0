package fleet

import "errors"

var (
	// ErrNoDevices is returned by Start when the configuration names no
	// devices at all. A fleet of zero terminals is a configuration bug.
	ErrNoDevices = errors.New("fleet: no devices configured")

	// ErrAlreadyStarted is returned by Start on a running supervisor.
	ErrAlreadyStarted = errors.New("fleet: supervisor already started")

	// ErrUnknownDevice is returned when a device id is not in the fleet.
	ErrUnknownDevice = errors.New("fleet: unknown device id")
)
