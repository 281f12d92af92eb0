package terminal

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

// errConnectRefused simulates a device rejecting the session handshake.
var errConnectRefused = errors.New("connect refused")

// timeoutError satisfies net.Error with Timeout() == true.
type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeTransport delivers injected frames to the live reader. A Read with
// no frame queued returns a timeout error after the configured timeout
// (or immediately for a zero timeout, matching an idle socket poll).
type fakeTransport struct {
	mu      sync.Mutex
	timeout time.Duration

	frames chan []byte
	closed chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	timeout := t.timeout
	t.mu.Unlock()
	if timeout <= 0 {
		timeout = 10 * time.Millisecond
	}

	select {
	case <-t.closed:
		return 0, io.EOF
	case frame := <-t.frames:
		return copy(p, frame), nil
	case <-time.After(timeout):
		return 0, timeoutError{}
	}
}

func (t *fakeTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) inject(frame []byte) {
	t.frames <- frame
}

// fakeDriver is an in-memory Driver for exercising the link and the
// live-capture loop without a device.
type fakeDriver struct {
	mu sync.Mutex

	connected    bool
	connectFails int // fail this many Connect calls before succeeding
	connectCalls int
	pingOK       bool
	streamMode   bool

	enableCalls  int
	disableCalls int
	regOn        int
	regOff       int
	verifyCalls  int
	cancelCalls  int
	ackCalls     int

	users    []User
	saved    []Template
	usersErr error

	transport *fakeTransport
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{pingOK: true, transport: newFakeTransport()}
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCalls++
	if d.connectFails > 0 {
		d.connectFails--
		return errConnectRefused
	}
	d.connected = true
	return nil
}

func (d *fakeDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *fakeDriver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDriver) Ping(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected && d.pingOK
}

func (d *fakeDriver) Enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enableCalls++
	return nil
}

func (d *fakeDriver) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disableCalls++
	return nil
}

func (d *fakeDriver) StartVerify() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verifyCalls++
	return nil
}

func (d *fakeDriver) CancelCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelCalls++
	return nil
}

func (d *fakeDriver) RegEvent(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if on {
		d.regOn++
	} else {
		d.regOff++
	}
	return nil
}

func (d *fakeDriver) AckLive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ackCalls++
	return nil
}

func (d *fakeDriver) Stream() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamMode
}

func (d *fakeDriver) RawTransport() RawTransport { return d.transport }

func (d *fakeDriver) SetUser(u User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.users {
		if existing.UserID == u.UserID {
			d.users[i] = u
			return nil
		}
	}
	d.users = append(d.users, u)
	return nil
}

func (d *fakeDriver) Users() ([]User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.usersErr != nil {
		return nil, d.usersErr
	}
	out := make([]User, len(d.users))
	copy(out, d.users)
	return out, nil
}

func (d *fakeDriver) DeleteUser(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, u := range d.users {
		if u.UserID == userID {
			d.users = append(d.users[:i], d.users[i+1:]...)
			return nil
		}
	}
	return ErrUserNotFound
}

func (d *fakeDriver) EnrollUser(userID string, fingerID int) error { return nil }
func (d *fakeDriver) CancelEnroll() error                          { return nil }

func (d *fakeDriver) Template(userID string, fingerID int) (Template, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.saved {
		if t.FingerID == fingerID {
			return t, nil
		}
	}
	return Template{}, ErrUserNotFound
}

func (d *fakeDriver) DeleteTemplate(userID string, fingerID int) error { return nil }

func (d *fakeDriver) SaveTemplate(u User, t Template) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saved = append(d.saved, t)
	return nil
}

func (d *fakeDriver) Attendance() ([]AttendanceRecord, error) { return nil, nil }

func (d *fakeDriver) Info() (DeviceInfo, error) {
	return DeviceInfo{Name: "fake", Firmware: "1.0"}, nil
}

// collectSink records forwarded events for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []AttendanceEvent
}

func (s *collectSink) Forward(e AttendanceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *collectSink) all() []AttendanceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AttendanceEvent, len(s.events))
	copy(out, s.events)
	return out
}

func testDevice() config.DeviceConfig {
	return config.DeviceConfig{ID: 1, Name: "Front Door", IP: "192.0.2.10", Port: 4370}
}

func testSession() config.SessionConfig {
	return config.SessionConfig{
		ConnectRetries:      3,
		RetryDelaySeconds:   0,
		PingIntervalSeconds: 15,
		ReadTimeoutSeconds:  1,
	}
}
