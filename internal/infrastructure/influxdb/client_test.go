package influxdb

import (
	"testing"
	"time"

	"github.com/termfleet/termfleet-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if err != ErrDisabled {
		t.Errorf("Connect() err = %v, want ErrDisabled", err)
	}
}

func TestWriteSessionSampleWhenDisconnected(t *testing.T) {
	// A zero-value client is not connected; writes must be silent no-ops.
	c := &Client{}
	c.WriteSessionSample(SessionSample{DeviceID: 1, PacketsRx: 10})
	c.WriteFleetSample(3, 2, 2)
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero-value client: %v", err)
	}
}

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 || boolToInt(false) != 0 {
		t.Error("boolToInt mapping incorrect")
	}
}

func TestSessionSampleNegativeAge(t *testing.T) {
	// Negative age means "never seen traffic"; the field is omitted, which
	// is only observable through the write path, so just confirm the
	// sample itself can represent it.
	s := SessionSample{DeviceID: 1, LastPacketAge: -time.Second}
	if s.LastPacketAge >= 0 {
		t.Error("expected negative LastPacketAge to survive")
	}
}
