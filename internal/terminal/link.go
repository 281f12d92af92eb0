package terminal

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Defaults and bounds for the link lifecycle.
const (
	// maxRetryDelay caps the linear connect backoff.
	maxRetryDelay = 60 * time.Second

	// stopJoinTimeout bounds the wait for the live-capture worker on Stop.
	stopJoinTimeout = 5 * time.Second

	// healthStaleFactor: a session with no packet or successful ping
	// within healthStaleFactor * pingInterval is unhealthy.
	healthStaleFactor = 3

	// pingProbeTimeout bounds the health-check ping probe.
	pingProbeTimeout = 5 * time.Second

	// Template byte-length bounds for fingerprint restore.
	minTemplateSize = 300
	maxTemplateSize = 2000
)

// State is the connection state of a Link.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
)

// Logger defines the logging interface used by the terminal package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// LinkStats is a point-in-time snapshot of a link's counters.
type LinkStats struct {
	SessionID     string
	State         State
	Connected     bool
	LiveRunning   bool
	PacketsRx     uint64
	EventsEmitted uint64
	Reconnects    uint64
	LastSeen      time.Time
}

// Link owns the session to one terminal: the driver connection, the
// live-capture reader, and the administrative enable/disable scope
// around commands.
//
// The driver handle is exclusively owned by this Link and is never
// shared. Commands are serialised: at most one Invoke runs at a time,
// and commands never overlap live capture because every command disables
// scanning first.
type Link struct {
	device  config.DeviceConfig
	session config.SessionConfig
	driver  Driver
	sink    EventSink
	logger  Logger

	// sessionID distinguishes restarted sessions of the same device id
	// in logs and status reports.
	sessionID string

	stateMu sync.RWMutex
	state   State

	// cmdMu serialises Invoke calls (one command at a time per device).
	cmdMu sync.Mutex

	reader *liveReader

	// stop signals cancellation to retry waits and the reader.
	stop    *closeOnce
	stopped atomic.Bool

	// lastSeen is the unix-nano time of the last packet or successful ping.
	lastSeen   atomic.Int64
	packetsRx  atomic.Uint64
	events     atomic.Uint64
	reconnects atomic.Uint64
}

// NewLink creates a link for one configured device. The driver must be a
// fresh, unshared instance. The sink receives decoded live events; the
// logger may be nil.
func NewLink(device config.DeviceConfig, session config.SessionConfig, driver Driver, sink EventSink, logger Logger) *Link {
	if logger == nil {
		logger = noopLogger{}
	}
	l := &Link{
		device:    device,
		session:   session,
		driver:    driver,
		sink:      sink,
		logger:    logger,
		sessionID: uuid.NewString(),
		state:     StateDisconnected,
		stop:      newCloseOnce(),
	}
	l.reader = newLiveReader(l)
	return l
}

// Device returns the immutable device configuration for this link.
func (l *Link) Device() config.DeviceConfig {
	return l.device
}

// SessionID returns the unique id of this session instance.
func (l *Link) SessionID() string {
	return l.sessionID
}

// Connect establishes the device session, retrying with linear backoff.
//
// Fast path: if the driver is already connected and answers a ping, the
// call returns true immediately (starting live capture if requested).
// Otherwise up to ConnectRetries attempts are made with a delay of
// min(RetryDelay * attempt, 60s) between them. The wait is interruptible:
// both ctx cancellation and Stop abort the retry loop immediately.
//
// Returns false when retries are exhausted or the link was stopped; the
// link is left Disconnected.
func (l *Link) Connect(ctx context.Context, enableLiveCapture bool) bool {
	if l.stopped.Load() {
		return false
	}

	if l.driver.IsConnected() && l.driver.Ping(ctx) {
		l.markSeen()
		l.setState(StateConnected)
		if enableLiveCapture {
			l.startLiveCapture()
		}
		return true
	}

	retries := l.session.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	baseDelay := l.session.RetryDelay()

	l.setState(StateConnecting)

	for attempt := 1; attempt <= retries; attempt++ {
		if l.stopped.Load() || ctx.Err() != nil {
			break
		}

		err := l.driver.Connect(ctx)
		if err == nil {
			l.logger.Info("connected to device",
				"device_id", l.device.ID,
				"device", l.device.Name,
				"session_id", l.sessionID,
			)
			l.markSeen()
			l.setState(StateConnected)
			if attempt > 1 {
				l.reconnects.Add(1)
			}
			if enableLiveCapture {
				l.startLiveCapture()
			}
			return true
		}

		if attempt < retries {
			delay := min(baseDelay*time.Duration(attempt), maxRetryDelay)
			l.logger.Warn("connect attempt failed, retrying",
				"device_id", l.device.ID,
				"attempt", attempt,
				"max_attempts", retries,
				"retry_in", delay.String(),
				"error", err,
			)
			if !l.waitInterruptible(ctx, delay) {
				break
			}
		} else {
			l.logger.Error("connect attempts exhausted",
				"device_id", l.device.ID,
				"attempts", retries,
				"error", err,
			)
		}
	}

	l.setState(StateDisconnected)
	return false
}

// waitInterruptible sleeps for d unless the context is cancelled or the
// link is stopped first. Returns false when the wait was interrupted.
func (l *Link) waitInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-l.stop.Done():
		return false
	case <-timer.C:
		return true
	}
}

// startLiveCapture starts the live reader, degrading the link rather than
// failing if the arm sequence cannot complete.
func (l *Link) startLiveCapture() {
	if err := l.reader.start(); err != nil {
		l.logger.Error("starting live capture failed",
			"device_id", l.device.ID,
			"error", err,
		)
		l.setState(StateDegraded)
	}
}

// IsHealthy reports whether the session is fully functional: connected,
// with a running live-capture worker, recent traffic, and a responsive
// ping probe. Any failure while probing counts as unhealthy; nothing
// propagates.
func (l *Link) IsHealthy() bool {
	if l.stopped.Load() {
		return false
	}
	if !l.driver.IsConnected() {
		return false
	}
	if !l.reader.running() {
		return false
	}

	stale := time.Duration(healthStaleFactor) * l.session.PingInterval()
	if stale > 0 && time.Since(l.lastSeenTime()) > stale {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingProbeTimeout)
	defer cancel()
	if !l.driver.Ping(ctx) {
		return false
	}

	l.markSeen()
	return true
}

// Stop signals cancellation to the live reader, waits up to 5s for the
// worker to finish, then closes the connection. Idempotent: stopping an
// already-stopped (or never-started) link is a no-op.
func (l *Link) Stop() {
	if !l.stopped.CompareAndSwap(false, true) {
		return
	}

	l.stop.Close()
	l.reader.stopAndJoin(stopJoinTimeout)

	if err := l.driver.Disconnect(); err != nil {
		l.logger.Warn("disconnect failed",
			"device_id", l.device.ID,
			"error", err,
		)
	}
	l.setState(StateDisconnected)

	l.logger.Info("device session stopped",
		"device_id", l.device.ID,
		"session_id", l.sessionID,
	)
}

// Stats returns a snapshot of the link's counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		SessionID:     l.sessionID,
		State:         l.currentState(),
		Connected:     l.driver.IsConnected(),
		LiveRunning:   l.reader.running(),
		PacketsRx:     l.packetsRx.Load(),
		EventsEmitted: l.events.Load(),
		Reconnects:    l.reconnects.Load(),
		LastSeen:      l.lastSeenTime(),
	}
}

func (l *Link) setState(s State) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

func (l *Link) currentState() State {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

func (l *Link) markSeen() {
	l.lastSeen.Store(time.Now().UnixNano())
}

func (l *Link) lastSeenTime() time.Time {
	return time.Unix(0, l.lastSeen.Load())
}

// Invoke dispatches a named operation against the device. Before the
// operation the device is placed in a disabled (scanning paused) state;
// afterwards it is re-enabled on every exit path, including errors and
// panics. Unknown operation names fail with ErrUnknownOperation.
func (l *Link) Invoke(ctx context.Context, operation string, args ...any) (any, error) {
	handler, ok := operations[operation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}

	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return l.withScanningPaused(func() (any, error) {
		return handler(l, args)
	})
}

// withScanningPaused brackets fn with the administrative disable/enable
// sequence. The enable call runs on every exit path; its failure is
// logged, never returned, so a command's own error is preserved.
func (l *Link) withScanningPaused(fn func() (any, error)) (any, error) {
	if err := l.driver.Disable(); err != nil {
		l.logger.Warn("disabling device failed",
			"device_id", l.device.ID,
			"error", err,
		)
	}
	defer func() {
		if err := l.driver.Enable(); err != nil {
			l.logger.Error("re-enabling device failed",
				"device_id", l.device.ID,
				"error", err,
			)
		}
	}()

	return fn()
}

// operationFunc executes one named operation with raw arguments.
type operationFunc func(l *Link, args []any) (any, error)

// operations maps Invoke operation names to handlers. The set mirrors
// the service surface the REST layer exposes.
var operations = map[string]operationFunc{
	"create_user": func(l *Link, args []any) (any, error) {
		u, err := argUser(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, l.driver.SetUser(u)
	},
	"get_all_users": func(l *Link, _ []any) (any, error) {
		return l.driver.Users()
	},
	"get_user": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return l.findUser(userID)
	},
	"delete_user": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, l.driver.DeleteUser(userID)
	},
	"enroll_user": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fingerID, err := argInt(args, 1)
		if err != nil {
			return nil, err
		}
		return nil, l.driver.EnrollUser(userID, fingerID)
	},
	"cancel_enroll": func(l *Link, _ []any) (any, error) {
		return nil, l.driver.CancelEnroll()
	},
	"get_user_template": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fingerID, err := argInt(args, 1)
		if err != nil {
			return nil, err
		}
		return l.driver.Template(userID, fingerID)
	},
	"set_user_template": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fingerID, err := argInt(args, 1)
		if err != nil {
			return nil, err
		}
		data, err := argBytes(args, 2)
		if err != nil {
			return nil, err
		}
		return nil, l.restoreTemplate(userID, fingerID, data)
	},
	"delete_user_template": func(l *Link, args []any) (any, error) {
		userID, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fingerID, err := argInt(args, 1)
		if err != nil {
			return nil, err
		}
		return nil, l.driver.DeleteTemplate(userID, fingerID)
	},
	"get_attendance": func(l *Link, _ []any) (any, error) {
		return l.driver.Attendance()
	},
	"device_info": func(l *Link, _ []any) (any, error) {
		return l.driver.Info()
	},
}

// findUser looks a user up by external identifier.
func (l *Link) findUser(userID string) (User, error) {
	users, err := l.driver.Users()
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.UserID == userID {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
}

// SetUserTemplate restores a fingerprint template for a user and finger
// index, with the same disable/enable scoping as Invoke. The decoded
// template length must be within [300, 2000] bytes; anything else is a
// validation error, not a protocol call. A user absent from the device
// is auto-created as a minimal placeholder record first.
func (l *Link) SetUserTemplate(ctx context.Context, userID string, fingerID int, data []byte) error {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := l.withScanningPaused(func() (any, error) {
		return nil, l.restoreTemplate(userID, fingerID, data)
	})
	return err
}

// restoreTemplate implements the template-write policy. Callers hold the
// command lock and the scanning-paused scope.
func (l *Link) restoreTemplate(userID string, fingerID int, data []byte) error {
	if len(data) < minTemplateSize || len(data) > maxTemplateSize {
		return fmt.Errorf("%w: %d bytes (accepted %d-%d)",
			ErrTemplateSize, len(data), minTemplateSize, maxTemplateSize)
	}

	user, err := l.findUser(userID)
	if err != nil {
		if fmtErr := l.createPlaceholderUser(userID); fmtErr != nil {
			return fmtErr
		}
		user, err = l.findUser(userID)
		if err != nil {
			return err
		}
	}

	tpl := Template{
		UID:      user.UID,
		FingerID: fingerID,
		Valid:    true,
		Data:     data,
	}
	if err := l.driver.SaveTemplate(user, tpl); err != nil {
		return fmt.Errorf("saving template for user %q finger %d: %w", userID, fingerID, err)
	}

	l.logger.Info("template restored",
		"device_id", l.device.ID,
		"user_id", userID,
		"finger", fingerID,
		"size", len(data),
	)
	return nil
}

// createPlaceholderUser creates a minimal user record so a template can
// be attached. Numeric external ids double as the device slot number.
func (l *Link) createPlaceholderUser(userID string) error {
	uid, convErr := strconv.Atoi(userID)
	if convErr != nil || uid <= 0 {
		uid = l.nextFreeUID()
	}
	u := User{
		UID:    uid,
		UserID: userID,
		Name:   "user_" + userID,
	}
	if err := l.driver.SetUser(u); err != nil {
		return fmt.Errorf("auto-creating user %q: %w", userID, err)
	}
	return nil
}

// nextFreeUID picks a device slot number above every existing one.
func (l *Link) nextFreeUID() int {
	maxUID := 0
	users, err := l.driver.Users()
	if err == nil {
		for _, u := range users {
			if u.UID > maxUID {
				maxUID = u.UID
			}
		}
	}
	return maxUID + 1
}

// Argument extraction helpers for Invoke.

func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d: want string, got %T", ErrInvalidArgument, i, args[i])
	}
	return s, nil
}

func argInt(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	n, ok := args[i].(int)
	if !ok {
		return 0, fmt.Errorf("%w: argument %d: want int, got %T", ErrInvalidArgument, i, args[i])
	}
	return n, nil
}

func argBytes(args []any, i int) ([]byte, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	b, ok := args[i].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d: want []byte, got %T", ErrInvalidArgument, i, args[i])
	}
	return b, nil
}

func argUser(args []any, i int) (User, error) {
	if i >= len(args) {
		return User{}, fmt.Errorf("%w: missing argument %d", ErrInvalidArgument, i)
	}
	u, ok := args[i].(User)
	if !ok {
		return User{}, fmt.Errorf("%w: argument %d: want terminal.User, got %T", ErrInvalidArgument, i, args[i])
	}
	return u, nil
}
