package fleet

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu        sync.Mutex
	connected bool
	published map[string][]byte
	err       error
}

func (p *capturePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][]byte)
	}
	p.published[topic] = payload
	return nil
}

func (p *capturePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func sampleSnapshot() FleetSnapshot {
	return FleetSnapshot{
		Timestamp:  time.Now().UTC(),
		Configured: 2,
		Active:     2,
		Healthy:    1,
		Devices: []DeviceStatus{
			{DeviceID: 1, DeviceName: "Front Door", Connected: true, Healthy: true},
			{DeviceID: 2, DeviceName: "Back Door", Connected: true, Healthy: false},
		},
	}
}

func TestReportPublishesFleetAndDeviceTopics(t *testing.T) {
	pub := &capturePublisher{connected: true}
	r := NewStatusReporter(pub, nil)

	r.Report(sampleSnapshot())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.published) != 3 {
		t.Fatalf("topics published = %d, want 3 (fleet + 2 devices)", len(pub.published))
	}

	fleetPayload, ok := pub.published["termfleet/status/fleet"]
	if !ok {
		t.Fatal("fleet status topic not published")
	}
	var snapshot FleetSnapshot
	if err := json.Unmarshal(fleetPayload, &snapshot); err != nil {
		t.Fatalf("fleet payload is not JSON: %v", err)
	}
	if snapshot.Healthy != 1 {
		t.Errorf("fleet payload healthy = %d, want 1", snapshot.Healthy)
	}

	devicePayload, ok := pub.published["termfleet/status/device/2"]
	if !ok {
		t.Fatal("device 2 status topic not published")
	}
	var device DeviceStatus
	if err := json.Unmarshal(devicePayload, &device); err != nil {
		t.Fatalf("device payload is not JSON: %v", err)
	}
	if device.DeviceName != "Back Door" || device.Healthy {
		t.Errorf("device payload = %+v, want Back Door unhealthy", device)
	}
}

func TestReportSkipsWhenBrokerOffline(t *testing.T) {
	pub := &capturePublisher{connected: false}
	r := NewStatusReporter(pub, nil)

	r.Report(sampleSnapshot())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.published) != 0 {
		t.Errorf("published %d topics on an offline broker, want 0", len(pub.published))
	}
}

func TestReportSwallowsPublishErrors(t *testing.T) {
	pub := &capturePublisher{connected: true, err: errors.New("broker gone")}
	r := NewStatusReporter(pub, nil)
	r.Report(sampleSnapshot()) // must not panic or propagate
}

func TestReportStopping(t *testing.T) {
	pub := &capturePublisher{connected: true}
	r := NewStatusReporter(pub, nil)

	r.ReportStopping()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	payload, ok := pub.published["termfleet/status/fleet"]
	if !ok {
		t.Fatal("stopping marker not published on fleet topic")
	}
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("stopping payload is not JSON: %v", err)
	}
	if msg["status"] != "stopping" {
		t.Errorf("status = %v, want stopping", msg["status"])
	}
}

func TestReportNilPublisherIsNoop(t *testing.T) {
	r := NewStatusReporter(nil, nil)
	r.Report(sampleSnapshot())
}
