package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/termfleet/termfleet-core/internal/terminal"
)

const (
	// checkInPath is appended to the configured backend base URL.
	checkInPath = "/check-in"

	defaultTimeout = 5 * time.Second
)

// Logger defines the logging interface used by the webhook package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// checkInPayload is the wire shape the backend expects for one punch.
type checkInPayload struct {
	MemberID   string  `json:"member_id"`
	DeviceID   int     `json:"device_id"`
	DeviceName string  `json:"device_name"`
	Timestamp  float64 `json:"timestamp"`
}

// Forwarder delivers attendance events to the backend check-in endpoint.
// Delivery is strictly best-effort: every failure is logged and the event
// dropped, so a slow or dead backend can never stall live capture.
//
// Forwarder implements terminal.EventSink.
type Forwarder struct {
	baseURL string
	client  *http.Client
	logger  Logger
}

// New creates a forwarder posting to backendURL + "/check-in" with the
// given per-request timeout (0 means 5s). An empty backendURL produces a
// no-op forwarder that logs dropped events.
func New(backendURL string, timeout time.Duration, logger Logger) *Forwarder {
	if logger == nil {
		logger = noopLogger{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Forwarder{
		baseURL: strings.TrimRight(backendURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Forward posts one attendance event to the backend. Implements
// terminal.EventSink; never returns an error to the caller.
func (f *Forwarder) Forward(event terminal.AttendanceEvent) {
	if f.baseURL == "" {
		f.logger.Debug("no backend configured, dropping event",
			"subject_id", event.SubjectID,
			"device_id", event.DeviceID,
		)
		return
	}

	if err := f.post(event); err != nil {
		f.logger.Warn("check-in delivery failed, event dropped",
			"subject_id", event.SubjectID,
			"device_id", event.DeviceID,
			"error", err,
		)
		return
	}

	f.logger.Debug("check-in delivered",
		"subject_id", event.SubjectID,
		"device_id", event.DeviceID,
	)
}

func (f *Forwarder) post(event terminal.AttendanceEvent) error {
	payload := checkInPayload{
		MemberID:   event.SubjectID,
		DeviceID:   event.DeviceID,
		DeviceName: event.DeviceName,
		Timestamp:  event.ObservedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	resp, err := f.client.Post(f.baseURL+checkInPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting check-in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}
