package fleet

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
	"github.com/termfleet/termfleet-core/internal/infrastructure/influxdb"
)

// Supervisor owns every device session in the fleet: it brings them up
// concurrently at startup, polls their health on a fixed cadence,
// replaces sessions that have gone bad, and emits status and metrics
// each cycle.
//
// A session is replaced, never repaired: the old session is stopped and
// a fresh one built through the factory, so a wedged connection can
// never linger behind a healthy-looking handle.
type Supervisor struct {
	devices []config.DeviceConfig
	session config.SessionConfig
	factory SessionFactory
	logger  Logger

	metrics  Metrics
	reporter *StatusReporter

	mu       sync.RWMutex
	sessions map[int]Session

	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor for the configured devices. The
// factory is called once per device at Start and again on every
// restart. Metrics and status reporting are optional; see SetMetrics
// and SetReporter.
func NewSupervisor(devices []config.DeviceConfig, session config.SessionConfig, factory SessionFactory, logger Logger) *Supervisor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{
		devices:  devices,
		session:  session,
		factory:  factory,
		logger:   logger,
		sessions: make(map[int]Session),
		stop:     make(chan struct{}),
	}
}

// SetMetrics attaches a metrics recorder. Call before Start.
func (s *Supervisor) SetMetrics(m Metrics) {
	s.metrics = m
}

// SetReporter attaches a status reporter. Call before Start.
func (s *Supervisor) SetReporter(r *StatusReporter) {
	s.reporter = r
}

// Start brings up one session per configured device concurrently, then
// launches the monitor loop. Individual devices failing to connect is
// not fatal: their sessions stay registered and the monitor keeps
// retrying them. Only an empty device list is an error.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.devices) == 0 {
		return ErrNoDevices
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.logger.Info("starting fleet", "devices", len(s.devices))

	var wg sync.WaitGroup
	for _, device := range s.devices {
		wg.Add(1)
		go func(device config.DeviceConfig) {
			defer wg.Done()
			s.startSession(ctx, device)
		}(device)
	}
	wg.Wait()

	snapshot := s.StatusSnapshot()
	s.logger.Info("fleet started",
		"configured", snapshot.Configured,
		"active", snapshot.Active,
	)

	s.wg.Add(1)
	go s.monitor()
	return nil
}

// startSession builds and connects one device session, registering it
// whether or not the initial connect succeeds.
func (s *Supervisor) startSession(ctx context.Context, device config.DeviceConfig) {
	sess, err := s.factory(device)
	if err != nil {
		s.logger.Error("building device session failed",
			"device_id", device.ID,
			"device", device.Name,
			"error", err,
		)
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.session.StartTimeout())
	defer cancel()

	if !sess.Connect(connectCtx, true) {
		s.logger.Error("device failed to connect at startup",
			"device_id", device.ID,
			"device", device.Name,
		)
	}

	s.mu.Lock()
	s.sessions[device.ID] = sess
	s.mu.Unlock()
}

// monitor is the supervisor's health loop: every interval it snapshots
// the fleet, replaces unhealthy sessions, and publishes status and
// metrics.
func (s *Supervisor) monitor() {
	defer s.wg.Done()

	interval := s.session.MonitorInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		select {
		case <-s.stop:
			return
		case <-time.After(interval):
		}

		s.runCycle()
	}
}

func (s *Supervisor) runCycle() {
	snapshot := s.StatusSnapshot()

	for _, d := range snapshot.Devices {
		if !d.Healthy {
			s.restartSession(d.DeviceID)
		}
	}

	s.record(snapshot)
	if s.reporter != nil {
		s.reporter.Report(snapshot)
	}
}

// restartSession replaces one session wholesale: stop the old handle,
// build a fresh one, connect it, swap it into the registry.
func (s *Supervisor) restartSession(deviceID int) {
	s.mu.RLock()
	old, ok := s.sessions[deviceID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	device := old.Device()
	s.logger.Warn("session unhealthy, restarting",
		"device_id", deviceID,
		"device", device.Name,
		"session_id", old.Stats().SessionID,
	)

	old.Stop()

	sess, err := s.factory(device)
	if err != nil {
		s.logger.Error("rebuilding device session failed",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.session.StartTimeout())
	defer cancel()

	if sess.Connect(ctx, true) {
		s.logger.Info("session restarted",
			"device_id", deviceID,
			"session_id", sess.Stats().SessionID,
		)
	} else {
		s.logger.Error("session restart failed, will retry next cycle",
			"device_id", deviceID,
		)
	}

	s.mu.Lock()
	s.sessions[deviceID] = sess
	s.mu.Unlock()
}

// record writes one monitor cycle's observations to the metrics sink.
func (s *Supervisor) record(snapshot FleetSnapshot) {
	if s.metrics == nil {
		return
	}

	for _, d := range snapshot.Devices {
		age := time.Duration(-1)
		if !d.LastSeen.IsZero() && d.LastSeen.Unix() > 0 {
			age = time.Since(d.LastSeen)
		}
		s.metrics.WriteSessionSample(influxdb.SessionSample{
			DeviceID:      d.DeviceID,
			DeviceName:    d.DeviceName,
			Connected:     d.Connected,
			Healthy:       d.Healthy,
			PacketsRx:     d.PacketsRx,
			EventsEmitted: d.EventsEmitted,
			Reconnects:    d.Reconnects,
			LastPacketAge: age,
		})
	}
	s.metrics.WriteFleetSample(snapshot.Configured, snapshot.Active, snapshot.Healthy)
}

// StatusSnapshot returns a point-in-time view of every session, sorted
// by device id. Healthy implies an end-to-end probe, so a snapshot is
// not free; callers poll, they do not spin.
func (s *Supervisor) StatusSnapshot() FleetSnapshot {
	s.mu.RLock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	snapshot := FleetSnapshot{
		Timestamp:  time.Now().UTC(),
		Configured: len(s.devices),
	}

	for _, sess := range sessions {
		device := sess.Device()
		stats := sess.Stats()
		healthy := sess.IsHealthy()

		if stats.Connected {
			snapshot.Active++
		}
		if healthy {
			snapshot.Healthy++
		}

		snapshot.Devices = append(snapshot.Devices, DeviceStatus{
			DeviceID:      device.ID,
			DeviceName:    device.Name,
			Address:       device.Addr(),
			SessionID:     stats.SessionID,
			State:         string(stats.State),
			Connected:     stats.Connected,
			Healthy:       healthy,
			LiveCapture:   stats.LiveRunning,
			PacketsRx:     stats.PacketsRx,
			EventsEmitted: stats.EventsEmitted,
			Reconnects:    stats.Reconnects,
			LastSeen:      stats.LastSeen,
		})
	}

	sort.Slice(snapshot.Devices, func(i, j int) bool {
		return snapshot.Devices[i].DeviceID < snapshot.Devices[j].DeviceID
	})

	return snapshot
}

// Session returns the managed session for a device id.
func (s *Supervisor) Session(deviceID int) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[deviceID]
	if !ok {
		return nil, ErrUnknownDevice
	}
	return sess, nil
}

// DeviceIDs returns the sorted ids of every managed session.
func (s *Supervisor) DeviceIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Shutdown stops the monitor loop and every session. Idempotent; safe
// to call on a supervisor that never started.
func (s *Supervisor) Shutdown() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[int]Session)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess Session) {
			defer wg.Done()
			sess.Stop()
		}(sess)
	}
	wg.Wait()

	s.logger.Info("fleet stopped", "sessions", len(sessions))
}
