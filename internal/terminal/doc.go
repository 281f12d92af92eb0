// Package terminal implements the per-device session engine for biometric
// attendance terminals.
//
// A Link owns exactly one connection to one terminal: it handles
// connect/retry with backoff, ping-based health checks, administratively
// scoped command invocation, and the live-capture read loop that frames
// and decodes event packets pushed by the device.
//
// # Driver Contract
//
// The proprietary device command set is supplied by an external protocol
// driver implementing the Driver interface. The engine deliberately does
// not reach into driver internals: raw socket access for the live-capture
// loop goes through the RawTransport capability the driver exposes.
// Drivers register by name via RegisterDriver, and configuration selects
// which driver a fleet uses.
//
// # Live Capture
//
// Terminals push attendance events over the established session. The read
// loop receives packets of up to 1032 bytes, acknowledges each one, and
// decodes fixed-layout records whose shape is keyed on the remaining
// payload length. Decoded subject identifiers are emitted as
// AttendanceEvents to an EventSink; delivery failures never affect the
// loop.
//
// # Thread Safety
//
// A Link's connection is exclusively owned by the Link. Commands and live
// capture do not run concurrently: every command first places the device
// in a disabled (scanning paused) state and restores it afterwards on
// every exit path.
package terminal
