// Package sim provides an in-memory terminal driver for development and
// testing. It registers under the name "sim" and behaves like a small
// datagram-mode terminal: users, templates, and attendance live in
// process memory, and enrolled users generate periodic live punches
// while real-time events are armed.
//
// Import for side effect:
//
//	import _ "github.com/termfleet/termfleet-core/internal/terminal/sim"
package sim

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
	"github.com/termfleet/termfleet-core/internal/terminal"
)

func init() {
	terminal.RegisterDriver("sim", New)
}

// punchInterval is the cadence of synthetic live punches while armed.
const punchInterval = 20 * time.Second

// liveEventCommand mirrors the reply code real terminals use for live
// attendance packets.
const liveEventCommand = 500

// New builds a simulated driver for one device. Every device starts
// with a single enrolled user so live punches flow out of the box.
func New(cfg config.DeviceConfig) (terminal.Driver, error) {
	d := &driver{
		cfg:       cfg,
		users:     make(map[string]terminal.User),
		templates: make(map[string]terminal.Template),
		transport: newPipeTransport(),
	}
	d.users["1001"] = terminal.User{UID: 1, UserID: "1001", Name: "Sim User"}
	return d, nil
}

type driver struct {
	cfg config.DeviceConfig

	mu        sync.Mutex
	connected bool
	enabled   bool
	armed     bool
	stopEmit  chan struct{}

	users      map[string]terminal.User
	templates  map[string]terminal.Template
	attendance []terminal.AttendanceRecord

	transport *pipeTransport
}

func (d *driver) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	d.enabled = true
	return nil
}

func (d *driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disarmLocked()
	d.connected = false
	return nil
}

func (d *driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *driver) Ping(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *driver) Enable() error {
	return d.setEnabled(true)
}

func (d *driver) Disable() error {
	return d.setEnabled(false)
}

func (d *driver) setEnabled(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	d.enabled = on
	return nil
}

func (d *driver) StartVerify() error   { return d.requireConnected() }
func (d *driver) CancelCapture() error { return d.requireConnected() }
func (d *driver) CancelEnroll() error  { return d.requireConnected() }
func (d *driver) AckLive() error       { return nil }

// Stream is false: the simulator frames live packets like a datagram
// session.
func (d *driver) Stream() bool { return false }

func (d *driver) RawTransport() terminal.RawTransport { return d.transport }

func (d *driver) requireConnected() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	return nil
}

// RegEvent arms or disarms synthetic live punches.
func (d *driver) RegEvent(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	if on == d.armed {
		return nil
	}
	if on {
		d.armed = true
		d.stopEmit = make(chan struct{})
		go d.emitLoop(d.stopEmit)
	} else {
		d.disarmLocked()
	}
	return nil
}

func (d *driver) disarmLocked() {
	if d.armed {
		close(d.stopEmit)
		d.armed = false
	}
}

// emitLoop pushes a punch for each enrolled user in turn while armed.
func (d *driver) emitLoop(stop <-chan struct{}) {
	next := 0
	for {
		select {
		case <-stop:
			return
		case <-time.After(punchInterval):
		}

		d.mu.Lock()
		ids := make([]string, 0, len(d.users))
		for id := range d.users {
			ids = append(ids, id)
		}
		d.mu.Unlock()
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)

		d.Punch(ids[next%len(ids)])
		next++
	}
}

// Punch injects one live attendance packet for the given user id, as if
// the person had just scanned at the terminal. It also appends to the
// stored attendance log. Tests drive this directly.
func (d *driver) Punch(userID string) {
	d.mu.Lock()
	d.attendance = append(d.attendance, terminal.AttendanceRecord{
		UserID:    userID,
		Timestamp: time.Now(),
		Punch:     1,
	})
	d.mu.Unlock()

	d.transport.deliver(encodeLivePacket(userID))
}

// encodeLivePacket builds a datagram-framed live event: an 8-byte reply
// header followed by one attendance record. Numeric ids that fit in
// 16 bits use the short layout; everything else uses the text layout.
func encodeLivePacket(userID string) []byte {
	var record []byte
	if n, err := strconv.ParseUint(userID, 10, 16); err == nil {
		record = make([]byte, 10)
		binary.LittleEndian.PutUint16(record[:2], uint16(n))
	} else {
		record = make([]byte, 32)
		copy(record[:24], userID)
	}

	packet := make([]byte, 8+len(record))
	binary.LittleEndian.PutUint16(packet[:2], liveEventCommand)
	copy(packet[8:], record)
	return packet
}

func (d *driver) SetUser(u terminal.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	d.users[u.UserID] = u
	return nil
}

func (d *driver) Users() ([]terminal.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, terminal.ErrNotConnected
	}
	users := make([]terminal.User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UID < users[j].UID })
	return users, nil
}

func (d *driver) DeleteUser(userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	if _, ok := d.users[userID]; !ok {
		return fmt.Errorf("%w: %q", terminal.ErrUserNotFound, userID)
	}
	delete(d.users, userID)
	return nil
}

// EnrollUser records a template immediately; the simulator has no
// finger to wait for.
func (d *driver) EnrollUser(userID string, fingerID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	u, ok := d.users[userID]
	if !ok {
		return fmt.Errorf("%w: %q", terminal.ErrUserNotFound, userID)
	}
	d.templates[templateKey(userID, fingerID)] = terminal.Template{
		UID:      u.UID,
		FingerID: fingerID,
		Valid:    true,
		Data:     make([]byte, 512),
	}
	return nil
}

func (d *driver) Template(userID string, fingerID int) (terminal.Template, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.Template{}, terminal.ErrNotConnected
	}
	t, ok := d.templates[templateKey(userID, fingerID)]
	if !ok {
		return terminal.Template{}, fmt.Errorf("%w: user %q finger %d", terminal.ErrUserNotFound, userID, fingerID)
	}
	return t, nil
}

func (d *driver) DeleteTemplate(userID string, fingerID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	key := templateKey(userID, fingerID)
	if _, ok := d.templates[key]; !ok {
		return fmt.Errorf("%w: user %q finger %d", terminal.ErrUserNotFound, userID, fingerID)
	}
	delete(d.templates, key)
	return nil
}

func (d *driver) SaveTemplate(u terminal.User, t terminal.Template) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.ErrNotConnected
	}
	d.templates[templateKey(u.UserID, t.FingerID)] = t
	return nil
}

func (d *driver) Attendance() ([]terminal.AttendanceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, terminal.ErrNotConnected
	}
	out := make([]terminal.AttendanceRecord, len(d.attendance))
	copy(out, d.attendance)
	return out, nil
}

func (d *driver) Info() (terminal.DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return terminal.DeviceInfo{}, terminal.ErrNotConnected
	}
	return terminal.DeviceInfo{
		Name:          d.cfg.Name,
		Firmware:      "sim-1.0",
		Platform:      "simulator",
		DeviceTime:    time.Now(),
		UserCount:     len(d.users),
		TemplateCount: len(d.templates),
	}, nil
}

func templateKey(userID string, fingerID int) string {
	return userID + "/" + strconv.Itoa(fingerID)
}
