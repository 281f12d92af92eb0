package fleet

import (
	"encoding/json"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/mqtt"
)

// Publisher is the broker capability the reporter needs. *mqtt.Client
// satisfies it.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// StatusReporter publishes fleet and per-device status to the broker as
// retained JSON, so late subscribers immediately see the last known
// state. Publishing is best-effort: a broker outage is logged and the
// cycle's status dropped; the next cycle replaces it anyway.
type StatusReporter struct {
	publisher Publisher
	topics    mqtt.Topics
	logger    Logger
}

// NewStatusReporter creates a reporter publishing through the broker
// client.
func NewStatusReporter(publisher Publisher, logger Logger) *StatusReporter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StatusReporter{publisher: publisher, logger: logger}
}

// Report publishes one snapshot: the aggregate on the fleet topic and
// each device's status on its own topic.
func (r *StatusReporter) Report(snapshot FleetSnapshot) {
	if r.publisher == nil || !r.publisher.IsConnected() {
		return
	}

	r.publish(r.topics.FleetStatus(), snapshot)
	for _, device := range snapshot.Devices {
		r.publish(r.topics.DeviceStatus(device.DeviceID), device)
	}
}

// ReportStopping publishes a final retained marker on the fleet topic so
// subscribers can tell a clean shutdown from a crash (the broker's LWT
// covers the latter).
func (r *StatusReporter) ReportStopping() {
	if r.publisher == nil || !r.publisher.IsConnected() {
		return
	}
	r.publish(r.topics.FleetStatus(), map[string]any{
		"status":    "stopping",
		"timestamp": time.Now().UTC(),
	})
}

func (r *StatusReporter) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("encoding status failed", "topic", topic, "error", err)
		return
	}
	if err := r.publisher.PublishRetained(topic, payload); err != nil {
		r.logger.Warn("publishing status failed", "topic", topic, "error", err)
	}
}
