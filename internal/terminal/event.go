package terminal

// AttendanceEvent is one decoded live punch from a terminal.
// Immutable value: produced by the live-capture loop, handed to an
// EventSink, then discarded.
type AttendanceEvent struct {
	// SubjectID is the enrolled person/credential identifier punched at
	// the terminal, stringified regardless of its wire encoding.
	SubjectID string

	// DeviceID and DeviceName identify the originating terminal.
	DeviceID   int
	DeviceName string

	// ObservedAt is the local receive time as a Unix epoch with
	// fractional seconds.
	ObservedAt float64
}

// EventSink consumes decoded attendance events. Implementations must be
// best-effort: a sink failure must never propagate back into the
// live-capture loop, so Forward returns nothing.
type EventSink interface {
	Forward(event AttendanceEvent)
}
