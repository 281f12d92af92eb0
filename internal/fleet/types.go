package fleet

import (
	"context"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
	"github.com/termfleet/termfleet-core/internal/infrastructure/influxdb"
	"github.com/termfleet/termfleet-core/internal/terminal"
)

// Session is one managed device session. *terminal.Link satisfies it;
// tests substitute fakes.
type Session interface {
	// Connect establishes the session, optionally starting live capture.
	// Returns false when connection attempts are exhausted.
	Connect(ctx context.Context, enableLiveCapture bool) bool

	// IsHealthy probes the session end to end.
	IsHealthy() bool

	// Invoke runs a named operation against the device.
	Invoke(ctx context.Context, operation string, args ...any) (any, error)

	// Stop tears the session down. Idempotent.
	Stop()

	// Device returns the session's device configuration.
	Device() config.DeviceConfig

	// Stats returns the session's counters.
	Stats() terminal.LinkStats
}

// SessionFactory builds a fresh session for a device. The supervisor
// calls it at startup and again whenever it replaces an unhealthy
// session; each call must return a new, unshared session.
type SessionFactory func(device config.DeviceConfig) (Session, error)

// Metrics receives monitor-cycle observations. *influxdb.Client
// satisfies it; a nil Metrics disables recording.
type Metrics interface {
	WriteSessionSample(s influxdb.SessionSample)
	WriteFleetSample(configured, active, healthy int)
}

// Logger defines the logging interface used by the fleet package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceStatus is one device's entry in a fleet snapshot.
type DeviceStatus struct {
	DeviceID      int       `json:"device_id"`
	DeviceName    string    `json:"device_name"`
	Address       string    `json:"address"`
	SessionID     string    `json:"session_id"`
	State         string    `json:"state"`
	Connected     bool      `json:"connected"`
	Healthy       bool      `json:"healthy"`
	LiveCapture   bool      `json:"live_capture"`
	PacketsRx     uint64    `json:"packets_rx"`
	EventsEmitted uint64    `json:"events_emitted"`
	Reconnects    uint64    `json:"reconnects"`
	LastSeen      time.Time `json:"last_seen"`
}

// FleetSnapshot is a point-in-time view of every managed session.
type FleetSnapshot struct {
	Timestamp  time.Time      `json:"timestamp"`
	Configured int            `json:"configured"`
	Active     int            `json:"active"`
	Healthy    int            `json:"healthy"`
	Devices    []DeviceStatus `json:"devices"`
}
