package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

// readerState tracks the live-capture worker lifecycle.
type readerState int32

const (
	readerIdle readerState = iota
	readerRunning
	readerStopping
)

// liveReader owns the realtime-event subscription for one link: it arms
// the device for live capture, then runs a blocking read loop on the
// driver's raw transport until stopped.
//
// Read timeouts are routine (the device only transmits on scan events)
// and never terminate the loop; any other read error logs and backs off
// briefly so a dying transport cannot spin the CPU.
type liveReader struct {
	link *Link

	mu    sync.Mutex
	state readerState
	done  chan struct{}
}

func newLiveReader(l *Link) *liveReader {
	return &liveReader{link: l}
}

// running reports whether the capture worker is active.
func (r *liveReader) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == readerRunning
}

// start arms the device for realtime events and spawns the read loop.
// Starting an already-running reader is a no-op. The arm sequence
// mirrors what the terminals expect: cancel any pending capture, put
// the sensor into verification mode, enable the device, then subscribe
// to the realtime event stream.
func (r *liveReader) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != readerIdle {
		return nil
	}

	d := r.link.driver

	if err := d.CancelCapture(); err != nil {
		return fmt.Errorf("cancelling pending capture: %w", err)
	}
	if err := d.StartVerify(); err != nil {
		return fmt.Errorf("entering verify mode: %w", err)
	}
	if err := d.Enable(); err != nil {
		return fmt.Errorf("enabling device: %w", err)
	}
	if err := d.RegEvent(true); err != nil {
		return fmt.Errorf("subscribing to live events: %w", err)
	}

	transport := d.RawTransport()
	if transport == nil {
		return errors.New("driver exposes no raw transport")
	}
	if err := transport.SetReadTimeout(r.link.session.ReadTimeout()); err != nil {
		return fmt.Errorf("setting read timeout: %w", err)
	}

	r.state = readerRunning
	r.done = make(chan struct{})
	go r.run(transport, r.done)

	r.link.logger.Info("live capture started",
		"device_id", r.link.device.ID,
		"session_id", r.link.sessionID,
	)
	return nil
}

// run is the capture loop. It exits when the link's stop channel closes
// or the reader is told to stop; the transport timeout keeps the read
// from blocking past that signal for long.
func (r *liveReader) run(transport RawTransport, done chan struct{}) {
	defer close(done)
	defer r.disarm(transport)

	buf := make([]byte, liveReadBufferSize)
	stream := r.link.driver.Stream()

	for {
		select {
		case <-r.link.stop.Done():
			return
		default:
		}
		if r.stopping() {
			return
		}

		n, err := transport.Read(buf)
		if err != nil {
			if isIdleReadError(err) {
				continue
			}
			if r.stopping() {
				return
			}
			r.link.logger.Warn("live read failed",
				"device_id", r.link.device.ID,
				"error", err,
			)
			if !r.link.waitInterruptible(context.Background(), time.Second) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		r.link.packetsRx.Add(1)
		r.link.markSeen()

		// Acknowledge receipt so the terminal keeps streaming.
		if err := r.link.driver.AckLive(); err != nil {
			r.link.logger.Debug("live ack failed",
				"device_id", r.link.device.ID,
				"error", err,
			)
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		for _, subjectID := range decodeLiveFrame(packet, stream) {
			event := AttendanceEvent{
				SubjectID:  subjectID,
				DeviceID:   r.link.device.ID,
				DeviceName: r.link.device.Name,
				ObservedAt: float64(time.Now().UnixNano()) / float64(time.Second),
			}
			r.link.events.Add(1)
			r.link.logger.Info("attendance event",
				"device_id", r.link.device.ID,
				"subject_id", subjectID,
			)
			if r.link.sink != nil {
				r.link.sink.Forward(event)
			}
		}
	}
}

// disarm restores the device to its normal operating mode after the
// capture loop exits. Failures here are logged only: the session is
// already winding down and the device recovers on its next connect.
func (r *liveReader) disarm(transport RawTransport) {
	if err := transport.SetReadTimeout(0); err != nil {
		r.link.logger.Debug("restoring blocking reads failed",
			"device_id", r.link.device.ID,
			"error", err,
		)
	}
	if err := r.link.driver.RegEvent(false); err != nil {
		r.link.logger.Debug("unsubscribing live events failed",
			"device_id", r.link.device.ID,
			"error", err,
		)
	}

	r.mu.Lock()
	r.state = readerIdle
	r.mu.Unlock()

	r.link.logger.Info("live capture stopped",
		"device_id", r.link.device.ID,
		"session_id", r.link.sessionID,
	)
}

func (r *liveReader) stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == readerStopping
}

// stopAndJoin signals the worker to stop and waits up to timeout for it
// to exit. A reader that never started returns immediately.
func (r *liveReader) stopAndJoin(timeout time.Duration) {
	r.mu.Lock()
	if r.state != readerRunning {
		r.mu.Unlock()
		return
	}
	r.state = readerStopping
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		r.link.logger.Warn("live capture worker did not stop in time",
			"device_id", r.link.device.ID,
			"timeout", timeout.String(),
		)
	}
}

// isIdleReadError reports whether a read error is an expected timeout on
// an idle transport rather than a real fault.
func isIdleReadError(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN)
}
