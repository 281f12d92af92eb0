package terminal

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

// RawTransport is the capability a driver exposes for direct socket access
// by the live-capture loop. It is a deliberate part of the driver contract,
// not a reach into implementation details.
type RawTransport interface {
	// Read blocks until data arrives, the read timeout expires, or the
	// connection fails. At most len(p) bytes are read (one datagram for
	// UDP transports).
	Read(p []byte) (int, error)

	// SetReadTimeout sets the timeout for subsequent reads.
	// A zero duration restores fully blocking reads.
	SetReadTimeout(d time.Duration) error
}

// User is an enrolled person record on a terminal.
type User struct {
	UID       int    // device-internal slot number
	UserID    string // external identifier (badge/member number)
	Name      string
	Privilege int
	Password  string
	GroupID   int
	Card      int
}

// Template is a fingerprint feature-vector blob for one finger of one user.
type Template struct {
	UID      int
	FingerID int
	Valid    bool
	Data     []byte
}

// AttendanceRecord is one stored punch retrieved from the device log.
type AttendanceRecord struct {
	UserID    string
	Timestamp time.Time
	Status    int
	Punch     int
}

// DeviceInfo is the metadata a terminal reports about itself.
type DeviceInfo struct {
	Name          string
	Firmware      string
	Platform      string
	DeviceTime    time.Time
	UserCount     int
	TemplateCount int
}

// Driver is the contract an external device-protocol library must
// implement. All methods map to opaque remote procedure calls whose wire
// encoding is the driver's concern.
//
// A Driver instance is bound to a single terminal and is exclusively
// owned by one Link; it is never shared between links.
type Driver interface {
	// Connect establishes the device session, authenticating with the
	// configured password. Blocking; honours ctx cancellation.
	Connect(ctx context.Context) error

	// Disconnect tears down the session and closes the socket.
	Disconnect() error

	// IsConnected reports the driver's protocol-level connectivity flag.
	IsConnected() bool

	// Ping performs an application-level reachability probe.
	Ping(ctx context.Context) bool

	// Enable resumes normal scanning on the terminal.
	Enable() error

	// Disable pauses scanning so commands can run without interference.
	Disable() error

	// StartVerify arms the terminal for identification mode.
	StartVerify() error

	// CancelCapture aborts any pending capture or enrollment mode.
	CancelCapture() error

	// RegEvent toggles real-time event delivery over the session.
	RegEvent(on bool) error

	// AckLive acknowledges a received live event packet.
	AckLive() error

	// Stream reports whether the session uses a stream (TCP) transport.
	// Live packets are framed differently on stream and datagram sockets.
	Stream() bool

	// RawTransport returns the raw socket capability for live capture.
	RawTransport() RawTransport

	// User CRUD.
	SetUser(u User) error
	Users() ([]User, error)
	DeleteUser(userID string) error

	// Enrollment.
	EnrollUser(userID string, fingerID int) error
	CancelEnroll() error

	// Fingerprint templates.
	Template(userID string, fingerID int) (Template, error)
	DeleteTemplate(userID string, fingerID int) error
	SaveTemplate(u User, t Template) error

	// Attendance log retrieval.
	Attendance() ([]AttendanceRecord, error)

	// Info queries device metadata.
	Info() (DeviceInfo, error)
}

// Factory builds a Driver for one configured device.
type Factory func(cfg config.DeviceConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver makes a driver factory available under the given name.
// It panics if called twice with the same name, mirroring database/sql.
func RegisterDriver(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if factory == nil {
		panic("terminal: RegisterDriver factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("terminal: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = factory
}

// NewDriver builds a driver by registered name for the given device.
func NewDriver(name string, cfg config.DeviceConfig) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrDriverNotFound, name, Drivers())
	}
	return factory(cfg)
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
