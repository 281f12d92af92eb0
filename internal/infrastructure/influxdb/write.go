package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// SessionSample is one monitor-cycle observation of a device session.
// Produced by the supervisor; all counters are absolute (not deltas).
type SessionSample struct {
	DeviceID      int
	DeviceName    string
	Connected     bool
	Healthy       bool
	PacketsRx     uint64
	EventsEmitted uint64
	Reconnects    uint64
	// LastPacketAge is the time since the session last saw a packet or
	// successful ping. Negative when the session has never seen traffic.
	LastPacketAge time.Duration
}

// WriteSessionSample records one session observation.
//
// The write is non-blocking; points are batched and sent asynchronously.
func (c *Client) WriteSessionSample(s SessionSample) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"connected":      boolToInt(s.Connected),
		"healthy":        boolToInt(s.Healthy),
		"packets_rx":     int64(s.PacketsRx),
		"events_emitted": int64(s.EventsEmitted),
		"reconnects":     int64(s.Reconnects),
	}
	if s.LastPacketAge >= 0 {
		fields["last_packet_age_s"] = s.LastPacketAge.Seconds()
	}

	point := write.NewPoint(
		"terminal_session",
		map[string]string{
			"device_id":   strconv.Itoa(s.DeviceID),
			"device_name": s.DeviceName,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetSample records aggregate fleet counts for one monitor cycle.
func (c *Client) WriteFleetSample(configured, active, healthy int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet",
		nil,
		map[string]interface{}{
			"configured": configured,
			"active":     active,
			"healthy":    healthy,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
